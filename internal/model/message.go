package model

// Message is one entry of a recipient's mailbox.
type Message struct {
	From    string `json:"from"`
	Content any    `json:"msg"`
}

// Level is the severity tag of an engine log line.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelSuccess Level = "SUCCESS"
)
