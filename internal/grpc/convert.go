package grpcserver

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts any JSON-serialisable value into a Struct, using the
// models' json tags for field names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func field(in *structpb.Struct, name string) (*structpb.Value, bool) {
	if in == nil {
		return nil, false
	}
	v, ok := in.GetFields()[name]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

// maxExactID is the largest integer a Struct number carries without loss.
const maxExactID = 1 << 53

// requiredID reads a positive integer field no larger than maxExactID.
func requiredID(in *structpb.Struct, name string) (int64, error) {
	v, ok := field(in, name)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue <= 0 || n.NumberValue > maxExactID || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
	return int64(n.NumberValue), nil
}

func optionalID(in *structpb.Struct, name string) (int64, error) {
	if _, ok := field(in, name); !ok {
		return 0, nil
	}
	return requiredID(in, name)
}

func requiredNumber(in *structpb.Struct, name string) (float64, error) {
	v, ok := field(in, name)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	return n.NumberValue, nil
}

func optionalString(in *structpb.Struct, name string) (*string, error) {
	v, ok := field(in, name)
	if !ok {
		return nil, nil
	}
	s, isStr := v.GetKind().(*structpb.Value_StringValue)
	if !isStr {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a string", name)
	}
	return &s.StringValue, nil
}

func stringOrEmpty(in *structpb.Struct, name string) (string, error) {
	s, err := optionalString(in, name)
	if err != nil || s == nil {
		return "", err
	}
	return strings.TrimSpace(*s), nil
}

func optionalBool(in *structpb.Struct, name string) bool {
	v, ok := field(in, name)
	return ok && v.GetBoolValue()
}

// optionalTime reads an RFC 3339 timestamp.
func optionalTime(in *structpb.Struct, name string) (*time.Time, error) {
	s, err := optionalString(in, name)
	if err != nil || s == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}
