package receiver

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the content subtype of the ingestion service.
const codecName = "raw"

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// rawCodec marshals *[]byte messages as-is.
type rawCodec struct{}

func (rawCodec) Name() string { return codecName }

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *[]byte:
		return *m, nil
	case []byte:
		return m, nil
	}
	return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
}

// Unmarshal copies data, which gRPC may reuse once Unmarshal returns.
func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*m = append([]byte(nil), data...)
	return nil
}
