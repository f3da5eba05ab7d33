package main

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusmq/sqsd/broker"
	"github.com/nimbusmq/sqsd/models"
)

func newTestApp() (*App, *broker.ManualClock) {
	clock := broker.NewManualClock(1_000_000)
	return &App{Manager: broker.NewManager(clock)}, clock
}

func postForm(t *testing.T, app *App, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	app.RootSQSHandler(rr, req)
	return rr
}

func TestCreateQueueHandler_CreatesStandardQueue(t *testing.T) {
	app, _ := newTestApp()
	rr := postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.CreateQueueResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, strings.HasSuffix(resp.CreateQueueResult.QueueUrl, "/queues/orders"))

	_, err := app.Manager.GetQueue("orders")
	require.NoError(t, err)
}

func TestCreateQueueHandler_RejectsInvalidName(t *testing.T) {
	app, _ := newTestApp()
	rr := postForm(t, app, url.Values{
		"Action":    {"CreateQueue"},
		"QueueName": {"not a valid name!"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp models.ErrorResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "InvalidParameterValue", errResp.Error.Code)
}

func TestCreateQueueHandler_MissingNameIsError(t *testing.T) {
	app, _ := newTestApp()
	rr := postForm(t, app, url.Values{"Action": {"CreateQueue"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp models.ErrorResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "MissingParameter", errResp.Error.Code)
}

func TestDeleteQueueHandler_RemovesQueue(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	queueURL := app.queueURL(httptest.NewRequest(http.MethodPost, "/", nil), "orders")

	rr := postForm(t, app, url.Values{"Action": {"DeleteQueue"}, "QueueUrl": {queueURL}})
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := app.Manager.GetQueue("orders")
	require.Error(t, err)
}

func TestDeleteQueueHandler_UnknownQueueIsBadRequest(t *testing.T) {
	app, _ := newTestApp()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := postForm(t, app, url.Values{"Action": {"DeleteQueue"}, "QueueUrl": {app.queueURL(req, "missing")}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp models.ErrorResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "QueueDoesNotExist", errResp.Error.Code)
}

func TestListQueuesHandler_FiltersByPrefix(t *testing.T) {
	app, _ := newTestApp()
	for _, name := range []string{"orders-a", "orders-b", "shipments"} {
		postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {name}})
	}

	rr := postForm(t, app, url.Values{"Action": {"ListQueues"}, "QueueNamePrefix": {"orders"}})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.ListQueuesResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.ListQueuesResult.QueueUrl, 2)
}

func TestGetQueueUrlHandler(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})

	rr := postForm(t, app, url.Values{"Action": {"GetQueueUrl"}, "QueueName": {"orders"}})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.GetQueueUrlResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, strings.HasSuffix(resp.GetQueueUrlResult.QueueUrl, "/queues/orders"))
}

func queueURLFor(t *testing.T, app *App, name string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	return app.queueURL(req, name)
}

func TestGetQueueAttributesHandler_ReturnsRequestedAttributes(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")

	rr := postForm(t, app, url.Values{
		"Action":          {"GetQueueAttributes"},
		"QueueUrl":        {qURL},
		"AttributeName.1": {"VisibilityTimeout"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.GetQueueAttributesResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.GetQueueAttributesResult.Attribute, 1)
	assert.Equal(t, "VisibilityTimeout", resp.GetQueueAttributesResult.Attribute[0].Name)
	assert.Equal(t, "30", resp.GetQueueAttributesResult.Attribute[0].Value)
}

func TestSetQueueAttributesHandler_UpdatesVisibilityTimeout(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")

	rr := postForm(t, app, url.Values{
		"Action":            {"SetQueueAttributes"},
		"QueueUrl":          {qURL},
		"Attribute.1.Name":  {"VisibilityTimeout"},
		"Attribute.1.Value": {"60"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	q, err := app.Manager.GetQueue("orders")
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), q.Config().DefaultVisibilityTimeoutMillis)
}

func TestSendAndReceiveMessageHandler(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")

	sendRR := postForm(t, app, url.Values{
		"Action":      {"SendMessage"},
		"QueueUrl":    {qURL},
		"MessageBody": {"hello world"},
	})
	require.Equal(t, http.StatusOK, sendRR.Code)

	var sendResp models.SendMessageResponse
	require.NoError(t, xml.Unmarshal(sendRR.Body.Bytes(), &sendResp))
	assert.NotEmpty(t, sendResp.SendMessageResult.MessageId)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sendResp.SendMessageResult.MD5OfMessageBody)

	receiveRR := postForm(t, app, url.Values{
		"Action":              {"ReceiveMessage"},
		"QueueUrl":            {qURL},
		"MaxNumberOfMessages": {"5"},
	})
	require.Equal(t, http.StatusOK, receiveRR.Code)

	var receiveResp models.ReceiveMessageResponse
	require.NoError(t, xml.Unmarshal(receiveRR.Body.Bytes(), &receiveResp))
	require.Len(t, receiveResp.ReceiveMessageResult.Message, 1)
	entry := receiveResp.ReceiveMessageResult.Message[0]
	assert.Equal(t, "hello world", entry.Body)
	assert.NotEmpty(t, entry.ReceiptHandle)

	deleteRR := postForm(t, app, url.Values{
		"Action":        {"DeleteMessage"},
		"QueueUrl":      {qURL},
		"ReceiptHandle": {entry.ReceiptHandle},
	})
	assert.Equal(t, http.StatusOK, deleteRR.Code)
}

func TestSendMessageBatchHandler_MixedSuccessAndFailure(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders.fifo"}, "Attribute.1.Name": {"FifoQueue"}, "Attribute.1.Value": {"true"}})
	qURL := queueURLFor(t, app, "orders.fifo")

	form := url.Values{
		"Action":   {"SendMessageBatch"},
		"QueueUrl": {qURL},
		"SendMessageBatchRequestEntry.1.Id":             {"a"},
		"SendMessageBatchRequestEntry.1.MessageBody":    {"has-group"},
		"SendMessageBatchRequestEntry.1.MessageGroupId": {"g1"},
		"SendMessageBatchRequestEntry.1.MessageDeduplicationId": {"d1"},
		"SendMessageBatchRequestEntry.2.Id":             {"b"},
		"SendMessageBatchRequestEntry.2.MessageBody":    {"missing-group"},
	}
	rr := postForm(t, app, form)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.SendMessageBatchResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.SendMessageBatchResult.SendMessageBatchResultEntry, 1)
	require.Len(t, resp.SendMessageBatchResult.BatchResultErrorEntry, 1)
	assert.Equal(t, "a", resp.SendMessageBatchResult.SendMessageBatchResultEntry[0].Id)
	assert.Equal(t, "b", resp.SendMessageBatchResult.BatchResultErrorEntry[0].Id)
}

func TestChangeMessageVisibilityHandler(t *testing.T) {
	app, clock := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")
	postForm(t, app, url.Values{"Action": {"SendMessage"}, "QueueUrl": {qURL}, "MessageBody": {"x"}})

	receiveRR := postForm(t, app, url.Values{"Action": {"ReceiveMessage"}, "QueueUrl": {qURL}})
	var receiveResp models.ReceiveMessageResponse
	require.NoError(t, xml.Unmarshal(receiveRR.Body.Bytes(), &receiveResp))
	require.Len(t, receiveResp.ReceiveMessageResult.Message, 1)
	handle := receiveResp.ReceiveMessageResult.Message[0].ReceiptHandle

	rr := postForm(t, app, url.Values{
		"Action":            {"ChangeMessageVisibility"},
		"QueueUrl":          {qURL},
		"ReceiptHandle":     {handle},
		"VisibilityTimeout": {"0"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	_ = clock

	again := postForm(t, app, url.Values{"Action": {"ReceiveMessage"}, "QueueUrl": {qURL}})
	var againResp models.ReceiveMessageResponse
	require.NoError(t, xml.Unmarshal(again.Body.Bytes(), &againResp))
	require.Len(t, againResp.ReceiveMessageResult.Message, 1)
}

func TestPurgeQueueHandler(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")
	postForm(t, app, url.Values{"Action": {"SendMessage"}, "QueueUrl": {qURL}, "MessageBody": {"x"}})

	rr := postForm(t, app, url.Values{"Action": {"PurgeQueue"}, "QueueUrl": {qURL}})
	require.Equal(t, http.StatusOK, rr.Code)

	q, err := app.Manager.GetQueue("orders")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Statistics().ApproxVisible)
}

func TestRootSQSHandler_UnknownActionIsError(t *testing.T) {
	app, _ := newTestApp()
	rr := postForm(t, app, url.Values{"Action": {"DoesNotExist"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteMessageHandler_MissingReceiptHandle(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")

	rr := postForm(t, app, url.Values{"Action": {"DeleteMessage"}, "QueueUrl": {qURL}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetQueueAttributesHandler_AllReturnsEveryAttribute(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")

	rr := postForm(t, app, url.Values{"Action": {"GetQueueAttributes"}, "QueueUrl": {qURL}, "AttributeName.1": {"All"}})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.GetQueueAttributesResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, len(resp.GetQueueAttributesResult.Attribute), 9)
}

func TestSendMessageHandler_RejectsOversizedBody(t *testing.T) {
	app, _ := newTestApp()
	postForm(t, app, url.Values{"Action": {"CreateQueue"}, "QueueName": {"orders"}})
	qURL := queueURLFor(t, app, "orders")
	postForm(t, app, url.Values{
		"Action":            {"SetQueueAttributes"},
		"QueueUrl":          {qURL},
		"Attribute.1.Name":  {"MaximumMessageSize"},
		"Attribute.1.Value": {strconv.Itoa(broker.MinMaxMessageSizeBytes)},
	})

	big := strings.Repeat("x", broker.MinMaxMessageSizeBytes+1)
	rr := postForm(t, app, url.Values{"Action": {"SendMessage"}, "QueueUrl": {qURL}, "MessageBody": {big}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp models.ErrorResponse
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "MessageTooLong", errResp.Error.Code)
}
