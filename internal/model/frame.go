package model

// FrameType tells text frames apart from everything else on the wire.
type FrameType int

const (
	FrameText FrameType = iota + 1
	FrameBinary
)

// Frame is one discrete message unit exchanged over a connection.
type Frame struct {
	Type FrameType
	Data []byte
}

// TextFrame wraps s in a UTF-8 text frame.
func TextFrame(s string) Frame {
	return Frame{Type: FrameText, Data: []byte(s)}
}

// IsText reports whether f carries text.
func (f Frame) IsText() bool {
	return f.Type == FrameText
}
