package ws

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoFrame converts a JSON event object into a serialized
// google.protobuf.Struct.
func ProtoFrame(jsonPayload []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(jsonPayload, &fields); err != nil {
		return nil, fmt.Errorf("ws: decode event: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("ws: build struct: %w", err)
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("ws: marshal struct: %w", err)
	}
	return b, nil
}
