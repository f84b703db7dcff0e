package models

// An Envelope is a message as handed out by the queue transport.
// ReceiptHandle is only valid for the receive that produced it.
type Envelope struct {
	MessageID       string
	ReceiptHandle   string
	Body            string
	GroupID         string
	DeduplicationID string
	ReceiveCount    int
}

// SendAttributes carries the FIFO ordering and deduplication keys of a send
type SendAttributes struct {
	GroupID         string
	DeduplicationID string
}
