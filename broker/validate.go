package broker

import "regexp"

var queueNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,80}$`)

var messageGroupIdPattern = regexp.MustCompile(`^[A-Za-z0-9!-~]{1,128}$`)

// validateMessageGroupId enforces spec.md §4.1 step 2's character-set and
// length bound for MessageGroupId, beyond the plain non-empty check.
func validateMessageGroupId(groupID string) error {
	if !messageGroupIdPattern.MatchString(groupID) {
		return newValidationErr(CodeInvalidParameterValue, "The MessageGroupId is invalid. Reason: Must match [A-Za-z0-9!-~]{1,128}.")
	}
	return nil
}

// ValidateConfig checks a Config against the bounds spec.md §3 defines
// for each attribute, independent of wire-layer parsing. Manager.CreateQueue
// and Queue.UpdateAttributes both call this so an attribute can never be
// stored out of range regardless of which entry point set it.
func ValidateConfig(cfg Config) error {
	name := cfg.Name
	if cfg.Kind == Fifo {
		name = trimFifoSuffix(name)
	}
	if !queueNamePattern.MatchString(name) || len(cfg.Name) > 80 {
		return newValidationErr(CodeInvalidParameterValue, "Can only include alphanumeric characters, hyphens, or underscores. 1 to 80 in length.")
	}
	if cfg.Kind == Fifo && !hasFifoSuffix(cfg.Name) {
		return newValidationErr(CodeInvalidParameterValue, "The name of a FIFO queue must end with the .fifo suffix.")
	}
	if cfg.Kind == Standard && hasFifoSuffix(cfg.Name) {
		return newValidationErr(CodeInvalidParameterValue, "A queue name ending in .fifo must be created as a FIFO queue.")
	}

	if cfg.DefaultVisibilityTimeoutMillis < 0 || cfg.DefaultVisibilityTimeoutMillis > MaxVisibilityTimeoutMillis {
		return newValidationErr(CodeInvalidAttributeValue, "Value for parameter VisibilityTimeout is invalid. Reason: Must be an integer from 0 to 43200.")
	}
	if cfg.DelayMillis < 0 || cfg.DelayMillis > MaxDelayMillis {
		return newValidationErr(CodeInvalidAttributeValue, "Value for parameter DelaySeconds is invalid. Reason: Must be an integer from 0 to 900.")
	}
	if cfg.ReceiveMessageWaitMillis < 0 || cfg.ReceiveMessageWaitMillis > MaxReceiveWaitMillis {
		return newValidationErr(CodeInvalidAttributeValue, "Value for parameter ReceiveMessageWaitTimeSeconds is invalid. Reason: Must be an integer from 0 to 20.")
	}
	if cfg.MessageRetentionMillis < MinRetentionMillis || cfg.MessageRetentionMillis > MaxRetentionMillis {
		return newValidationErr(CodeInvalidAttributeValue, "Value for parameter MessageRetentionPeriod is invalid. Reason: Must be an integer from 60 to 1209600.")
	}
	if cfg.MaxMessageSizeBytes < MinMaxMessageSizeBytes || cfg.MaxMessageSizeBytes > MaxMaxMessageSizeBytes {
		return newValidationErr(CodeInvalidAttributeValue, "Value for parameter MaximumMessageSize is invalid. Reason: Must be an integer from 1024 to 262144.")
	}
	if cfg.ContentBasedDeduplication && cfg.Kind != Fifo {
		return newValidationErr(CodeInvalidAttributeValue, "ContentBasedDeduplication is only valid for FIFO queues.")
	}
	return nil
}

func hasFifoSuffix(name string) bool {
	return len(name) > 5 && name[len(name)-5:] == ".fifo"
}

func trimFifoSuffix(name string) string {
	if hasFifoSuffix(name) {
		return name[:len(name)-5]
	}
	return name
}
