package language

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOperation indicates a document without any operation definition.
	ErrNoOperation = errors.New("language: document has no operation definition")
	// ErrNoField indicates an operation whose selection set has no field.
	ErrNoField = errors.New("language: operation has no field selection")
)

// SelectOperation picks the operation named name, or the first operation
// when name is empty or unknown. Only the first operation takes part in
// subscription routing, matching how a single-operation request is sent.
func SelectOperation(doc *QueryDocument, name string) (*OperationDefinition, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, ErrNoOperation
	}
	if name != "" {
		if op := doc.Operations.ForName(name); op != nil {
			return op, nil
		}
	}
	return doc.Operations[0], nil
}

// SubscriptionFieldName returns the name of the first field selected by the
// first operation of doc. Aliases are ignored: the server keys channels by
// schema field name.
func SubscriptionFieldName(doc *QueryDocument) (string, error) {
	op, err := SelectOperation(doc, "")
	if err != nil {
		return "", err
	}
	for _, sel := range op.SelectionSet {
		if f, ok := sel.(*Field); ok {
			return f.Name, nil
		}
	}
	name := op.Name
	if name == "" {
		name = "<anonymous>"
	}
	return "", fmt.Errorf("%w: %s %s", ErrNoField, op.Operation, name)
}

// OperationType reports the type of the operation selected by name, or ""
// when the document has no operation.
func OperationType(doc *QueryDocument, name string) Operation {
	op, err := SelectOperation(doc, name)
	if err != nil {
		return ""
	}
	return op.Operation
}
