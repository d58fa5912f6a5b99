package protocol

// Transport is the byte-pipe Execute writes requests to and reads
// responses from. pkg/transport.SerialTransport and
// pkg/transport.FakeTransport both satisfy it.
type Transport interface {
	Write(p []byte) (int, error)
	ReadExact(n int) ([]byte, error)
}

// Execute writes cmd's request bytes, reads exactly ResponseLen bytes
// back, and returns the decoded result. This is the single primitive
// every higher layer (pkg/flasher) builds on; requests are never
// pipelined, each call fully drains its response before returning.
func Execute(t Transport, cmd Command) (any, error) {
	if _, err := t.Write(cmd.RequestBytes()); err != nil {
		return nil, NewTransportError("write request", err)
	}
	response, err := t.ReadExact(cmd.ResponseLen())
	if err != nil {
		return nil, err
	}
	return cmd.Decode(response)
}
