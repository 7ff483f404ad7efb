// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/poiesic/itemvec/core"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldVector   = "vector"
	fieldMetadata = "metadata"
	fieldID       = "id"

	fieldSpecName      = "name"
	fieldSpecDimension = "dimension"
	fieldSpecMetric    = "metric"
)

// MarshalRecord serializes an EmbeddingRecord to bytes.
func MarshalRecord(rec *core.EmbeddingRecord) ([]byte, error) {
	vec := make([]*structpb.Value, len(rec.Vector))
	for i, x := range rec.Vector {
		vec[i] = structpb.NewNumberValue(float64(x))
	}
	md, err := structpb.NewStruct(PlainMetadata(rec.Metadata))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata of %q: %v", ErrSerializationFailed, rec.ID, err)
	}

	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldID:       structpb.NewStringValue(rec.ID),
		fieldVector:   structpb.NewListValue(&structpb.ListValue{Values: vec}),
		fieldMetadata: structpb.NewStructValue(md),
	}}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalRecord(data []byte) (*core.EmbeddingRecord, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	values := msg.Fields[fieldVector].GetListValue().GetValues()
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}

	md := core.Metadata{}
	if s := msg.Fields[fieldMetadata].GetStructValue(); s != nil {
		md = core.Metadata(s.AsMap())
	}
	RestoreDate(md)

	return &core.EmbeddingRecord{
		ID:       msg.Fields[fieldID].GetStringValue(),
		Vector:   vec,
		Metadata: md,
	}, nil
}

// MarshalIndexSpec serializes an IndexSpec to bytes.
func MarshalIndexSpec(spec IndexSpec) ([]byte, error) {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSpecName:      structpb.NewStringValue(spec.Name),
		fieldSpecDimension: structpb.NewNumberValue(float64(spec.Dimension)),
		fieldSpecMetric:    structpb.NewStringValue(string(spec.Metric)),
	}}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalIndexSpec deserializes an IndexSpec from bytes.
func UnmarshalIndexSpec(data []byte) (IndexSpec, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return IndexSpec{}, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return IndexSpec{
		Name:      msg.Fields[fieldSpecName].GetStringValue(),
		Dimension: int(msg.Fields[fieldSpecDimension].GetNumberValue()),
		Metric:    Metric(msg.Fields[fieldSpecMetric].GetStringValue()),
	}, nil
}

// PlainMetadata converts metadata values to the JSON-compatible types
// understood by structpb and jsonb: nil, bool, float64/int64, string,
// []any and map[string]any. Driver and decoder types such as json.Number
// and time.Time are converted; unknown types are rendered with fmt.
func PlainMetadata(md core.Metadata) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case core.Metadata:
		return PlainMetadata(x)
	case core.RawItem:
		return PlainMetadata(core.Metadata(x))
	case map[string]any:
		return PlainMetadata(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// RestoreDate turns a whole-number created_date decoded as float64 back
// into int64 epoch milliseconds.
func RestoreDate(md core.Metadata) {
	f, ok := md[core.FieldCreatedDate].(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return
	}
	md[core.FieldCreatedDate] = int64(f)
}
