package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://gemcraft.ai/schemas/protocol/"

var clientSchemaFiles = map[string]string{
	TypeHello:     "hello.schema.json",
	TypeInput:     "input.schema.json",
	TypeActivate:  "activate.schema.json",
	TypeSubscribe: "subscribe.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	schemas = map[string]*jsonschema.Schema{}
	for typ, name := range clientSchemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			schemasErr = err
			return
		}
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			schemasErr = fmt.Errorf("%s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// ValidateClient checks a raw client message against the schema of its type.
func ValidateClient(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, err
	}
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return base, schemasErr
	}
	s, ok := schemas[base.Type]
	if !ok {
		return base, fmt.Errorf("unknown message type %q", base.Type)
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return base, err
	}
	if err := s.Validate(v); err != nil {
		return base, err
	}
	if base.ProtocolVersion != Version {
		return base, fmt.Errorf("bad protocol_version %q", base.ProtocolVersion)
	}
	return base, nil
}
