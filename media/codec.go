package media

// Codec decodes packets of one stream. Send with a nil packet enters draining mode;
// Receive then returns io.EOF once every buffered frame was returned
type Codec interface {
	// Send feeds a packet. ErrAgain means frames must be received first
	Send(pkt *Packet) error

	// Receive writes the next frame into f. ErrAgain means more input is needed
	Receive(f *Frame) error

	// Flush drops the codec internal state, used at discontinuities
	Flush()

	Close() error
}

// CodecOpener opens a codec for a stream
type CodecOpener interface {
	OpenCodec(s StreamInfo) (Codec, error)
}

// CodecOpenerFunc adapts a function to the CodecOpener interface
type CodecOpenerFunc func(s StreamInfo) (Codec, error)

func (f CodecOpenerFunc) OpenCodec(s StreamInfo) (Codec, error) {
	return f(s)
}
