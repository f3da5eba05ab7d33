package main

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusmq/sqsd/broker"
	"github.com/nimbusmq/sqsd/models"
)

// App holds the dependencies every handler needs. The Manager is the
// single source of truth for queue state; handlers translate between
// the Query/XML wire protocol and calls against it.
type App struct {
	Manager *broker.Manager
}

// sendXML writes v as an XML response body prefixed with the standard
// XML declaration, mirroring how AWS Query-protocol services respond.
func (app *App) sendXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Encode(v)
}

// sendErrorResponse renders err as an <ErrorResponse> body. A *broker.Error
// carries its own SQS-compatible Code and picks the HTTP status from Kind;
// any other error is treated as an opaque internal failure.
func (app *App) sendErrorResponse(w http.ResponseWriter, err error) {
	brokerErr, ok := err.(*broker.Error)
	if !ok {
		brokerErr = &broker.Error{Kind: broker.KindInternal, Code: broker.CodeInternal, Message: err.Error()}
	}

	status := http.StatusBadRequest
	if brokerErr.Kind == broker.KindInternal {
		status = http.StatusInternalServerError
	}

	app.sendXML(w, status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Type:    "Sender",
			Code:    string(brokerErr.Code),
			Message: brokerErr.Message,
		},
	})
}

func missingParam(name string) *broker.Error {
	return &broker.Error{Kind: broker.KindValidation, Code: broker.CodeMissingParameter, Message: fmt.Sprintf("The request must contain a %s.", name)}
}

func invalidParam(format string, args ...interface{}) *broker.Error {
	return &broker.Error{Kind: broker.KindValidation, Code: broker.CodeInvalidParameterValue, Message: fmt.Sprintf(format, args...)}
}

// RegisterSQSHandlers wires the single Query-protocol endpoint, matching
// the one-entrypoint-plus-Action-dispatch shape every AWS Query service
// uses: every action is a POST to "/" with Action as a form field.
func (app *App) RegisterSQSHandlers(r *chi.Mux) {
	r.Post("/", app.RootSQSHandler)
	r.Get("/", app.RootSQSHandler) // ListQueues/ReceiveMessage are occasionally issued as GET
}

// RootSQSHandler dispatches on the Action form field, the Query protocol's
// equivalent of the JSON protocol's X-Amz-Target header.
func (app *App) RootSQSHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.sendErrorResponse(w, invalidParam("Unable to parse request body."))
		return
	}

	switch r.FormValue("Action") {
	case "CreateQueue":
		app.CreateQueueHandler(w, r)
	case "DeleteQueue":
		app.DeleteQueueHandler(w, r)
	case "ListQueues":
		app.ListQueuesHandler(w, r)
	case "GetQueueUrl":
		app.GetQueueUrlHandler(w, r)
	case "GetQueueAttributes":
		app.GetQueueAttributesHandler(w, r)
	case "SetQueueAttributes":
		app.SetQueueAttributesHandler(w, r)
	case "PurgeQueue":
		app.PurgeQueueHandler(w, r)
	case "SendMessage":
		app.SendMessageHandler(w, r)
	case "SendMessageBatch":
		app.SendMessageBatchHandler(w, r)
	case "ReceiveMessage":
		app.ReceiveMessageHandler(w, r)
	case "DeleteMessage":
		app.DeleteMessageHandler(w, r)
	case "DeleteMessageBatch":
		app.DeleteMessageBatchHandler(w, r)
	case "ChangeMessageVisibility":
		app.ChangeMessageVisibilityHandler(w, r)
	case "ChangeMessageVisibilityBatch":
		app.ChangeMessageVisibilityBatchHandler(w, r)
	default:
		app.sendErrorResponse(w, invalidParam("The action %s is not valid for this web service.", r.FormValue("Action")))
	}
}

func (app *App) queueURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/queues/%s", scheme, r.Host, name)
}

func queueNameFromURL(queueURL string) (string, error) {
	if queueURL == "" {
		return "", missingParam("QueueUrl")
	}
	u, err := url.Parse(queueURL)
	if err != nil {
		return "", invalidParam("The address %s is not valid.", queueURL)
	}
	return path.Base(u.Path), nil
}

// --- Queue management -------------------------------------------------

var attributeNameToConfig = map[string]func(cfg *broker.Config, v string) error{
	"VisibilityTimeout": func(cfg *broker.Config, v string) error {
		n, err := parseMillisFromSeconds(v)
		if err != nil {
			return invalidParam("Value for parameter VisibilityTimeout is invalid.")
		}
		cfg.DefaultVisibilityTimeoutMillis = n
		return nil
	},
	"DelaySeconds": func(cfg *broker.Config, v string) error {
		n, err := parseMillisFromSeconds(v)
		if err != nil {
			return invalidParam("Value for parameter DelaySeconds is invalid.")
		}
		cfg.DelayMillis = n
		return nil
	},
	"ReceiveMessageWaitTimeSeconds": func(cfg *broker.Config, v string) error {
		n, err := parseMillisFromSeconds(v)
		if err != nil {
			return invalidParam("Value for parameter ReceiveMessageWaitTimeSeconds is invalid.")
		}
		cfg.ReceiveMessageWaitMillis = n
		return nil
	},
	"MessageRetentionPeriod": func(cfg *broker.Config, v string) error {
		n, err := parseMillisFromSeconds(v)
		if err != nil {
			return invalidParam("Value for parameter MessageRetentionPeriod is invalid.")
		}
		cfg.MessageRetentionMillis = n
		return nil
	},
	"MaximumMessageSize": func(cfg *broker.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalidParam("Value for parameter MaximumMessageSize is invalid.")
		}
		cfg.MaxMessageSizeBytes = n
		return nil
	},
	"ContentBasedDeduplication": func(cfg *broker.Config, v string) error {
		cfg.ContentBasedDeduplication = v == "true"
		return nil
	},
	"FifoQueue": func(cfg *broker.Config, v string) error {
		// Accepted but redundant: Kind is derived from the queue name's
		// .fifo suffix, never from this attribute.
		return nil
	},
}

func parseMillisFromSeconds(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * 1000, nil
}

func applyAttributes(cfg *broker.Config, attrs map[string]string) error {
	for name, val := range attrs {
		apply, ok := attributeNameToConfig[name]
		if !ok {
			return &broker.Error{Kind: broker.KindValidation, Code: broker.CodeInvalidAttributeName, Message: fmt.Sprintf("Unknown Attribute %s.", name)}
		}
		if err := apply(cfg, val); err != nil {
			return err
		}
	}
	return nil
}

func (app *App) CreateQueueHandler(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("QueueName")
	if name == "" {
		app.sendErrorResponse(w, missingParam("QueueName"))
		return
	}

	kind := broker.Standard
	if strings.HasSuffix(name, ".fifo") {
		kind = broker.Fifo
	}
	cfg := broker.DefaultConfig(name, kind)
	if err := applyAttributes(&cfg, parseAttributeMap(r.Form, "Attribute")); err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	q, err := app.Manager.CreateQueue(cfg)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	app.sendXML(w, http.StatusOK, models.CreateQueueResponse{
		CreateQueueResult: models.CreateQueueResult{QueueUrl: app.queueURL(r, q.Name())},
	})
}

func (app *App) DeleteQueueHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	if err := app.Manager.DeleteQueue(name); err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	app.sendXML(w, http.StatusOK, models.DeleteQueueResponse{})
}

func (app *App) ListQueuesHandler(w http.ResponseWriter, r *http.Request) {
	prefix := r.FormValue("QueueNamePrefix")
	names := app.Manager.ListQueues(prefix)
	urls := make([]string, len(names))
	for i, n := range names {
		urls[i] = app.queueURL(r, n)
	}
	app.sendXML(w, http.StatusOK, models.ListQueuesResponse{
		ListQueuesResult: models.ListQueuesResult{QueueUrl: urls},
	})
}

func (app *App) GetQueueUrlHandler(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("QueueName")
	if name == "" {
		app.sendErrorResponse(w, missingParam("QueueName"))
		return
	}
	if _, err := app.Manager.GetQueue(name); err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	app.sendXML(w, http.StatusOK, models.GetQueueUrlResponse{
		GetQueueUrlResult: models.GetQueueUrlResult{QueueUrl: app.queueURL(r, name)},
	})
}

func (app *App) GetQueueAttributesHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	cfg := q.Config()
	createdAt, updatedAt := q.Timestamps()
	stats := q.Statistics()

	all := map[string]string{
		"QueueArn":                        fmt.Sprintf("arn:aws:sqs:local:000000000000:%s", name),
		"ApproximateNumberOfMessages":           strconv.Itoa(stats.ApproxVisible),
		"ApproximateNumberOfMessagesNotVisible":  strconv.Itoa(stats.ApproxInflight),
		"ApproximateNumberOfMessagesDelayed":     strconv.Itoa(stats.ApproxDelayed),
		"CreatedTimestamp":                strconv.FormatInt(createdAt/1000, 10),
		"LastModifiedTimestamp":           strconv.FormatInt(updatedAt/1000, 10),
		"VisibilityTimeout":               strconv.FormatInt(cfg.DefaultVisibilityTimeoutMillis/1000, 10),
		"DelaySeconds":                    strconv.FormatInt(cfg.DelayMillis/1000, 10),
		"ReceiveMessageWaitTimeSeconds":   strconv.FormatInt(cfg.ReceiveMessageWaitMillis/1000, 10),
		"MessageRetentionPeriod":          strconv.FormatInt(cfg.MessageRetentionMillis/1000, 10),
		"MaximumMessageSize":              strconv.Itoa(cfg.MaxMessageSizeBytes),
		"FifoQueue":                       strconv.FormatBool(cfg.Kind == broker.Fifo),
		"ContentBasedDeduplication":       strconv.FormatBool(cfg.ContentBasedDeduplication),
	}

	requested := indexedFormValues(r.Form, "AttributeName")
	wantAll := len(requested) == 0
	for _, n := range requested {
		if n == "All" {
			wantAll = true
		}
	}

	var out []models.Attribute
	if wantAll {
		names := make([]string, 0, len(all))
		for n := range all {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, models.Attribute{Name: n, Value: all[n]})
		}
	} else {
		for _, n := range requested {
			if v, ok := all[n]; ok {
				out = append(out, models.Attribute{Name: n, Value: v})
			}
		}
	}

	app.sendXML(w, http.StatusOK, models.GetQueueAttributesResponse{
		GetQueueAttributesResult: models.GetQueueAttributesResult{Attribute: out},
	})
}

func (app *App) SetQueueAttributesHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	cfg := q.Config()
	if err := applyAttributes(&cfg, parseAttributeMap(r.Form, "Attribute")); err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	if err := q.UpdateAttributes(cfg); err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	app.sendXML(w, http.StatusOK, models.SetQueueAttributesResponse{})
}

func (app *App) PurgeQueueHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q.Purge()
	app.sendXML(w, http.StatusOK, models.PurgeQueueResponse{})
}

// --- Message handling --------------------------------------------------

// indexedFormValues reads the prefix.N indexed form convention used for
// simple repeated scalar parameters such as AttributeName.N.
func indexedFormValues(form url.Values, prefix string) []string {
	var out []string
	for i := 1; ; i++ {
		v := form.Get(fmt.Sprintf("%s.%d", prefix, i))
		if v == "" {
			break
		}
		out = append(out, v)
	}
	return out
}

// parseAttributeMap reads the Attribute.N.Name / Attribute.N.Value
// indexed form convention spec.md §6 describes for queue attributes.
func parseAttributeMap(form url.Values, prefix string) map[string]string {
	out := make(map[string]string)
	for i := 1; ; i++ {
		name := form.Get(fmt.Sprintf("%s.%d.Name", prefix, i))
		if name == "" {
			break
		}
		out[name] = form.Get(fmt.Sprintf("%s.%d.Value", prefix, i))
	}
	return out
}

// parseMessageAttributes reads the MessageAttribute.N.Name /
// MessageAttribute.N.Value.{StringValue,BinaryValue,DataType} convention.
func parseMessageAttributes(form url.Values) map[string]broker.AttributeValue {
	out := make(map[string]broker.AttributeValue)
	for i := 1; ; i++ {
		name := form.Get(fmt.Sprintf("MessageAttribute.%d.Name", i))
		if name == "" {
			break
		}
		out[name] = broker.AttributeValue{
			DataType:    form.Get(fmt.Sprintf("MessageAttribute.%d.Value.DataType", i)),
			StringValue: form.Get(fmt.Sprintf("MessageAttribute.%d.Value.StringValue", i)),
			BinaryValue: []byte(form.Get(fmt.Sprintf("MessageAttribute.%d.Value.BinaryValue", i))),
		}
	}
	return out
}

func attrsToWire(attrs map[string]broker.AttributeValue) []models.NamedMessageAttribute {
	if len(attrs) == 0 {
		return nil
	}
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]models.NamedMessageAttribute, 0, len(names))
	for _, n := range names {
		v := attrs[n]
		out = append(out, models.NamedMessageAttribute{
			Name: n,
			Value: models.MessageAttributeValue{
				StringValue: v.StringValue,
				BinaryValue: v.BinaryValue,
				DataType:    v.DataType,
			},
		})
	}
	return out
}

func (app *App) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	in, err := buildSendInput(r.Form)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	res, err := q.SendMessage(in)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	app.sendXML(w, http.StatusOK, models.SendMessageResponse{
		SendMessageResult: models.SendMessageResult{
			MessageId:              res.MessageID,
			MD5OfMessageBody:       res.BodyMD5,
			MD5OfMessageAttributes: res.AttributesMD5,
		},
	})
}

func buildSendInput(form url.Values) (broker.SendInput, error) {
	body := form.Get("MessageBody")
	if body == "" {
		return broker.SendInput{}, missingParam("MessageBody")
	}
	in := broker.SendInput{
		Body:                   body,
		Attributes:             parseMessageAttributes(form),
		MessageGroupId:         form.Get("MessageGroupId"),
		MessageDeduplicationId: form.Get("MessageDeduplicationId"),
	}
	if raw := form.Get("DelaySeconds"); raw != "" {
		millis, err := parseMillisFromSeconds(raw)
		if err != nil {
			return broker.SendInput{}, invalidParam("Value for parameter DelaySeconds is invalid.")
		}
		in.DelayOverrideMillis = &millis
	}
	return in, nil
}

func (app *App) SendMessageBatchHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	entries := batchEntryIndices(r.Form, "SendMessageBatchRequestEntry")
	if len(entries) == 0 {
		app.sendErrorResponse(w, &broker.Error{Kind: broker.KindValidation, Code: broker.CodeEmptyBatchRequest, Message: "The batch request doesn't contain any entries."})
		return
	}
	if len(entries) > broker.MaxBatchEntries {
		app.sendErrorResponse(w, &broker.Error{Kind: broker.KindValidation, Code: broker.CodeTooManyEntriesInBatch, Message: "The batch request contains more entries than permissible."})
		return
	}
	seen := make(map[string]bool)
	for _, idx := range entries {
		id := r.Form.Get(fmt.Sprintf("SendMessageBatchRequestEntry.%d.Id", idx))
		if seen[id] {
			app.sendErrorResponse(w, &broker.Error{Kind: broker.KindValidation, Code: broker.CodeBatchEntryIdsNotDistinct, Message: "Two or more batch entries in the request have the same Id."})
			return
		}
		seen[id] = true
	}

	var successes []models.SendMessageBatchResultEntry
	var failures []models.BatchResultErrorEntry
	for _, idx := range entries {
		prefix := fmt.Sprintf("SendMessageBatchRequestEntry.%d", idx)
		id := r.Form.Get(prefix + ".Id")
		in := broker.SendInput{
			Body:                   r.Form.Get(prefix + ".MessageBody"),
			MessageGroupId:         r.Form.Get(prefix + ".MessageGroupId"),
			MessageDeduplicationId: r.Form.Get(prefix + ".MessageDeduplicationId"),
		}
		res, err := q.SendMessage(in)
		if err != nil {
			failures = append(failures, entryFailure(id, err))
			continue
		}
		successes = append(successes, models.SendMessageBatchResultEntry{
			Id:                     id,
			MessageId:              res.MessageID,
			MD5OfMessageBody:       res.BodyMD5,
			MD5OfMessageAttributes: res.AttributesMD5,
		})
	}

	app.sendXML(w, http.StatusOK, models.SendMessageBatchResponse{
		SendMessageBatchResult: models.SendMessageBatchResult{
			SendMessageBatchResultEntry: successes,
			BatchResultErrorEntry:       failures,
		},
	})
}

func entryFailure(id string, err error) models.BatchResultErrorEntry {
	brokerErr, ok := err.(*broker.Error)
	if !ok {
		return models.BatchResultErrorEntry{Id: id, SenderFault: false, Code: string(broker.CodeInternal), Message: err.Error()}
	}
	return models.BatchResultErrorEntry{
		Id:          id,
		SenderFault: brokerErr.Kind == broker.KindValidation,
		Code:        string(brokerErr.Code),
		Message:     brokerErr.Message,
	}
}

// batchEntryIndices finds every N for which prefix.N.Id is set, in
// ascending order, supporting the SQS indexed-batch-entry convention
// without requiring entries to be contiguous or sorted on the wire.
func batchEntryIndices(form url.Values, prefix string) []int {
	var indices []int
	for key := range form {
		var idx int
		if n, err := fmt.Sscanf(key, prefix+".%d.Id", &idx); n == 1 && err == nil {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices
}

func (app *App) ReceiveMessageHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	in := broker.ReceiveInput{MaxMessages: 1}
	if raw := r.FormValue("MaxNumberOfMessages"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			app.sendErrorResponse(w, invalidParam("Value for parameter MaxNumberOfMessages is invalid."))
			return
		}
		in.MaxMessages = n
	}
	if raw := r.FormValue("VisibilityTimeout"); raw != "" {
		millis, convErr := parseMillisFromSeconds(raw)
		if convErr != nil {
			app.sendErrorResponse(w, invalidParam("Value for parameter VisibilityTimeout is invalid."))
			return
		}
		in.VisibilityOverrideMillis = &millis
	}
	if raw := r.FormValue("WaitTimeSeconds"); raw != "" {
		millis, convErr := parseMillisFromSeconds(raw)
		if convErr != nil {
			app.sendErrorResponse(w, invalidParam("Value for parameter WaitTimeSeconds is invalid."))
			return
		}
		in.WaitMillisOverride = &millis
	}

	views, err := q.ReceiveMessages(r.Context(), in)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	entries := make([]models.ReceiveMessageResultEntry, 0, len(views))
	for _, v := range views {
		entries = append(entries, models.ReceiveMessageResultEntry{
			MessageId:              v.Message.ID,
			ReceiptHandle:          v.ReceiptHandle,
			MD5OfBody:              v.Message.MD5OfBody,
			Body:                   v.Message.Body,
			MessageAttribute:       attrsToWire(v.Message.Attributes),
			MD5OfMessageAttributes: v.Message.MD5OfAttributes,
			Attribute: []models.Attribute{
				{Name: "ApproximateReceiveCount", Value: strconv.Itoa(v.Message.ReceiveCount)},
				{Name: "SentTimestamp", Value: strconv.FormatInt(v.Message.CreatedAt, 10)},
			},
		})
	}

	app.sendXML(w, http.StatusOK, models.ReceiveMessageResponse{
		ReceiveMessageResult: models.ReceiveMessageResult{Message: entries},
	})
}

func (app *App) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	handle := r.FormValue("ReceiptHandle")
	if handle == "" {
		app.sendErrorResponse(w, missingParam("ReceiptHandle"))
		return
	}
	if err := q.DeleteMessage(handle); err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	app.sendXML(w, http.StatusOK, models.DeleteMessageResponse{})
}

func (app *App) DeleteMessageBatchHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	entries := batchEntryIndices(r.Form, "DeleteMessageBatchRequestEntry")
	if len(entries) == 0 {
		app.sendErrorResponse(w, &broker.Error{Kind: broker.KindValidation, Code: broker.CodeEmptyBatchRequest, Message: "The batch request doesn't contain any entries."})
		return
	}

	var successes []models.DeleteMessageBatchResultEntry
	var failures []models.BatchResultErrorEntry
	for _, idx := range entries {
		prefix := fmt.Sprintf("DeleteMessageBatchRequestEntry.%d", idx)
		id := r.Form.Get(prefix + ".Id")
		handle := r.Form.Get(prefix + ".ReceiptHandle")
		if err := q.DeleteMessage(handle); err != nil {
			failures = append(failures, entryFailure(id, err))
			continue
		}
		successes = append(successes, models.DeleteMessageBatchResultEntry{Id: id})
	}

	app.sendXML(w, http.StatusOK, models.DeleteMessageBatchResponse{
		DeleteMessageBatchResult: models.DeleteMessageBatchResult{
			DeleteMessageBatchResultEntry: successes,
			BatchResultErrorEntry:         failures,
		},
	})
}

func (app *App) ChangeMessageVisibilityHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	handle := r.FormValue("ReceiptHandle")
	if handle == "" {
		app.sendErrorResponse(w, missingParam("ReceiptHandle"))
		return
	}
	millis, convErr := parseMillisFromSeconds(r.FormValue("VisibilityTimeout"))
	if convErr != nil {
		app.sendErrorResponse(w, invalidParam("Value for parameter VisibilityTimeout is invalid."))
		return
	}
	if err := q.ChangeMessageVisibility(handle, millis); err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	app.sendXML(w, http.StatusOK, models.ChangeMessageVisibilityResponse{})
}

func (app *App) ChangeMessageVisibilityBatchHandler(w http.ResponseWriter, r *http.Request) {
	name, err := queueNameFromURL(r.FormValue("QueueUrl"))
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}
	q, err := app.Manager.GetQueue(name)
	if err != nil {
		app.sendErrorResponse(w, err)
		return
	}

	entries := batchEntryIndices(r.Form, "ChangeMessageVisibilityBatchRequestEntry")
	if len(entries) == 0 {
		app.sendErrorResponse(w, &broker.Error{Kind: broker.KindValidation, Code: broker.CodeEmptyBatchRequest, Message: "The batch request doesn't contain any entries."})
		return
	}

	var successes []models.ChangeMessageVisibilityBatchResultEntry
	var failures []models.BatchResultErrorEntry
	for _, idx := range entries {
		prefix := fmt.Sprintf("ChangeMessageVisibilityBatchRequestEntry.%d", idx)
		id := r.Form.Get(prefix + ".Id")
		handle := r.Form.Get(prefix + ".ReceiptHandle")
		millis, convErr := parseMillisFromSeconds(r.Form.Get(prefix + ".VisibilityTimeout"))
		if convErr != nil {
			failures = append(failures, entryFailure(id, invalidParam("Value for parameter VisibilityTimeout is invalid.")))
			continue
		}
		if err := q.ChangeMessageVisibility(handle, millis); err != nil {
			failures = append(failures, entryFailure(id, err))
			continue
		}
		successes = append(successes, models.ChangeMessageVisibilityBatchResultEntry{Id: id})
	}

	app.sendXML(w, http.StatusOK, models.ChangeMessageVisibilityBatchResponse{
		ChangeMessageVisibilityBatchResult: models.ChangeMessageVisibilityBatchResult{
			ChangeMessageVisibilityBatchResultEntry: successes,
			BatchResultErrorEntry:                   failures,
		},
	})
}
