// Package computepb holds the wire schema of the gateway services.
//
// The schema is kept as .proto source and compiled into descriptors when first
// used; messages travel as dynamicpb messages and are exposed to callers as
// plain Go structs.
package computepb

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ProtoFileName is the path the schema is registered under.
const ProtoFileName = "edgegate/v1/compute.proto"

const (
	SobelServiceName   = "edgegate.v1.SobelService"
	PredictServiceName = "edgegate.v1.PredictService"
)

//go:embed compute.proto
var protoSource string

var (
	loadOnce sync.Once
	fileDesc protoreflect.FileDescriptor
	loadErr  error
)

// Load parses the embedded schema and registers it in protoregistry.GlobalFiles
// so that server reflection can serve it. It is safe to call repeatedly.
func Load() (protoreflect.FileDescriptor, error) {
	loadOnce.Do(func() {
		parser := protoparse.Parser{
			Accessor: protoparse.FileContentsFromMap(map[string]string{
				ProtoFileName: protoSource,
			}),
		}
		fds, err := parser.ParseFiles(ProtoFileName)
		if err != nil {
			loadErr = fmt.Errorf("failed to parse %s: %w", ProtoFileName, err)
			return
		}
		fd := fds[0].UnwrapFile()
		if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
			loadErr = fmt.Errorf("failed to register %s: %w", ProtoFileName, err)
			return
		}
		fileDesc = fd
	})
	return fileDesc, loadErr
}

// File returns the schema descriptor. The schema is compiled into the binary,
// so a parse failure is a build defect and File panics on it.
func File() protoreflect.FileDescriptor {
	fd, err := Load()
	if err != nil {
		panic(err)
	}
	return fd
}

func newMessage(name protoreflect.Name) *dynamicpb.Message {
	md := File().Messages().ByName(name)
	if md == nil {
		panic(fmt.Sprintf("message %s not found in %s", name, ProtoFileName))
	}
	return dynamicpb.NewMessage(md)
}

func fieldOf(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("field %s not found in %s", name, m.Descriptor().FullName()))
	}
	return fd
}

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	m.Set(fieldOf(m, name), protoreflect.ValueOfString(v))
}

func setInt32(m protoreflect.Message, name protoreflect.Name, v int32) {
	m.Set(fieldOf(m, name), protoreflect.ValueOfInt32(v))
}

func setDouble(m protoreflect.Message, name protoreflect.Name, v float64) {
	m.Set(fieldOf(m, name), protoreflect.ValueOfFloat64(v))
}

func setBool(m protoreflect.Message, name protoreflect.Name, v bool) {
	m.Set(fieldOf(m, name), protoreflect.ValueOfBool(v))
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(fieldOf(m, name)).String()
}

func getInt32(m protoreflect.Message, name protoreflect.Name) int32 {
	return int32(m.Get(fieldOf(m, name)).Int())
}

func getDouble(m protoreflect.Message, name protoreflect.Name) float64 {
	return m.Get(fieldOf(m, name)).Float()
}

func getBool(m protoreflect.Message, name protoreflect.Name) bool {
	return m.Get(fieldOf(m, name)).Bool()
}
