package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrInvalidPayload = errors.New("invalid approval payload")

//go:embed schema/approval.schema.json
var approvalSchemaJSON []byte

var (
	approvalSchemaOnce sync.Once
	approvalSchema     *jsonschema.Schema
	approvalSchemaErr  error
)

func loadApprovalSchema() (*jsonschema.Schema, error) {
	approvalSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("approval.schema.json", bytes.NewReader(approvalSchemaJSON)); err != nil {
			approvalSchemaErr = err
			return
		}
		approvalSchema, approvalSchemaErr = compiler.Compile("approval.schema.json")
	})
	return approvalSchema, approvalSchemaErr
}

// Inputs are the card input values Teams merges into the action data.
type Inputs struct {
	Comment     string
	Title       string
	Description string
}

// DecodePayload validates the data echoed by an approval card and splits it
// into the request it carries and the inputs typed by the user.
func DecodePayload(raw []byte) (Request, Inputs, error) {
	schema, err := loadApprovalSchema()
	if err != nil {
		return Request{}, Inputs{}, fmt.Errorf("load approval schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Request{}, Inputs{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return Request{}, Inputs{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, Inputs{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := checkParticipants(req); err != nil {
		return Request{}, Inputs{}, err
	}
	in := Inputs{Comment: req.Comment, Title: req.Title, Description: req.Description}
	if !req.State.Terminal() {
		req.Comment = ""
	}
	if req.ApproverComments == nil {
		req.ApproverComments = []Comment{}
	}
	return req, in, nil
}

// checkParticipants rejects payloads where an identity is listed twice as a
// remaining approver or is both remaining and already recorded.
func checkParticipants(req Request) error {
	seen := make(map[string]struct{}, len(req.Approvers))
	for _, a := range req.Approvers {
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: approver %s listed twice", ErrInvalidPayload, a)
		}
		seen[a] = struct{}{}
	}
	for _, c := range req.ApproverComments {
		if _, both := seen[c.Email]; both {
			return fmt.Errorf("%w: %s is both pending and recorded", ErrInvalidPayload, c.Email)
		}
	}
	return nil
}
