package jsonrpc2

import "io"

// DebugCodec wraps a codec and logs every message that passes through it.
// Logging goes to the package logger, see SetLogger.
func DebugCodec(name string, codec Codec) Codec {
	return &debugCodec{name: name, inner: codec}
}

type debugCodec struct {
	name  string
	inner Codec
}

func (codec *debugCodec) ReadMessage() (*Message, error) {
	msg, err := codec.inner.ReadMessage()
	if err != nil {
		logger.Printf("%s <- read error: %s", codec.name, err)
		return msg, err
	}
	logger.Printf("%s <- %s", codec.name, msg)
	return msg, nil
}

func (codec *debugCodec) WriteMessage(req *Request) error {
	err := codec.inner.WriteMessage(req)
	if err != nil {
		logger.Printf("%s -> write error on %s: %s", codec.name, req, err)
		return err
	}
	logger.Printf("%s -> %s %s", codec.name, req, req.Params)
	return nil
}

func (codec *debugCodec) Close() error {
	if c, ok := codec.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
