// Package columnar moves group vectors and link weight matrices in and out
// of nodenets as Apache Arrow IPC streams.
//
// A vector is one record with a "uid" column and a "value" column. A matrix
// is one record with a "target" column followed by one float64 column per
// source node; row i, column j is the weight from source j to target i.
package columnar

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

// Kind selects which per-node value a vector carries.
type Kind string

const (
	KindActivation Kind = "activation"
	KindTheta      Kind = "theta"
)

const (
	metaKind      = "nodenet.kind"
	metaGroup     = "nodenet.group"
	metaNodespace = "nodenet.nodespace"
	metaFrom      = "nodenet.from"
	metaTo        = "nodenet.to"
)

// Vector is one value per member of a group, in group order.
type Vector struct {
	Nodespace string
	Group     string
	Kind      Kind
	UIDs      []string
	Values    []float64
}

// Matrix holds link weights between two groups. Weights[i][j] is the
// weight from FromUIDs[j] to ToUIDs[i].
type Matrix struct {
	From     string
	To       string
	FromUIDs []string
	ToUIDs   []string
	Weights  [][]float64
}

func metaValue(md arrow.Metadata, key string) string {
	if i := md.FindKey(key); i >= 0 {
		return md.Values()[i]
	}
	return ""
}

// WriteVector writes v as a single-record IPC stream.
func WriteVector(w io.Writer, v Vector) error {
	if len(v.UIDs) != len(v.Values) {
		return fmt.Errorf("vector has %d uids but %d values", len(v.UIDs), len(v.Values))
	}
	md := arrow.NewMetadata(
		[]string{metaKind, metaGroup, metaNodespace},
		[]string{string(v.Kind), v.Group, v.Nodespace},
	)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "uid", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, &md)

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues(v.UIDs, nil)
	b.Field(1).(*array.Float64Builder).AppendValues(v.Values, nil)
	rec := b.NewRecord()
	defer rec.Release()

	return writeRecord(w, schema, rec, mem)
}

// ReadVector reads a stream written by WriteVector.
func ReadVector(r io.Reader) (Vector, error) {
	rec, schema, err := readRecord(r)
	if err != nil {
		return Vector{}, err
	}
	defer rec.Release()

	if rec.NumCols() != 2 {
		return Vector{}, fmt.Errorf("vector record has %d columns, want 2", rec.NumCols())
	}
	uids, ok := rec.Column(0).(*array.String)
	if !ok {
		return Vector{}, fmt.Errorf("vector uid column is %s", rec.Column(0).DataType())
	}
	values, ok := rec.Column(1).(*array.Float64)
	if !ok {
		return Vector{}, fmt.Errorf("vector value column is %s", rec.Column(1).DataType())
	}

	md := schema.Metadata()
	v := Vector{
		Nodespace: metaValue(md, metaNodespace),
		Group:     metaValue(md, metaGroup),
		Kind:      Kind(metaValue(md, metaKind)),
		UIDs:      make([]string, rec.NumRows()),
		Values:    make([]float64, rec.NumRows()),
	}
	for i := range v.UIDs {
		v.UIDs[i] = uids.Value(i)
		v.Values[i] = values.Value(i)
	}
	return v, nil
}

// WriteMatrix writes m as a single-record IPC stream.
func WriteMatrix(w io.Writer, m Matrix) error {
	if len(m.Weights) != len(m.ToUIDs) {
		return fmt.Errorf("matrix has %d rows for %d targets", len(m.Weights), len(m.ToUIDs))
	}
	fields := make([]arrow.Field, 0, len(m.FromUIDs)+1)
	fields = append(fields, arrow.Field{Name: "target", Type: arrow.BinaryTypes.String})
	for _, uid := range m.FromUIDs {
		fields = append(fields, arrow.Field{Name: uid, Type: arrow.PrimitiveTypes.Float64})
	}
	md := arrow.NewMetadata([]string{metaFrom, metaTo}, []string{m.From, m.To})
	schema := arrow.NewSchema(fields, &md)

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues(m.ToUIDs, nil)
	for i, row := range m.Weights {
		if len(row) != len(m.FromUIDs) {
			return fmt.Errorf("matrix row %d has %d weights for %d sources", i, len(row), len(m.FromUIDs))
		}
		for j, w := range row {
			b.Field(j + 1).(*array.Float64Builder).Append(w)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	return writeRecord(w, schema, rec, mem)
}

// ReadMatrix reads a stream written by WriteMatrix.
func ReadMatrix(r io.Reader) (Matrix, error) {
	rec, schema, err := readRecord(r)
	if err != nil {
		return Matrix{}, err
	}
	defer rec.Release()

	targets, ok := rec.Column(0).(*array.String)
	if !ok {
		return Matrix{}, fmt.Errorf("matrix target column is %s", rec.Column(0).DataType())
	}
	m := Matrix{
		From:    metaValue(schema.Metadata(), metaFrom),
		To:      metaValue(schema.Metadata(), metaTo),
		ToUIDs:  make([]string, rec.NumRows()),
		Weights: make([][]float64, rec.NumRows()),
	}
	cols := make([]*array.Float64, 0, rec.NumCols()-1)
	for j := 1; j < int(rec.NumCols()); j++ {
		col, ok := rec.Column(j).(*array.Float64)
		if !ok {
			return Matrix{}, fmt.Errorf("matrix column %s is %s", schema.Field(j).Name, col.DataType())
		}
		cols = append(cols, col)
		m.FromUIDs = append(m.FromUIDs, schema.Field(j).Name)
	}
	for i := range m.ToUIDs {
		m.ToUIDs[i] = targets.Value(i)
		row := make([]float64, len(cols))
		for j, col := range cols {
			row[j] = col.Value(i)
		}
		m.Weights[i] = row
	}
	return m, nil
}

func writeRecord(w io.Writer, schema *arrow.Schema, rec arrow.Record, mem memory.Allocator) error {
	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("closing arrow stream: %w", err)
	}
	return nil
}

// readRecord returns the first record of an IPC stream. The caller
// releases it.
func readRecord(r io.Reader) (arrow.Record, *arrow.Schema, error) {
	ir, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, nil, fmt.Errorf("opening arrow stream: %w", err)
	}
	defer ir.Release()

	if !ir.Next() {
		if err := ir.Err(); err != nil {
			return nil, nil, fmt.Errorf("reading arrow record: %w", err)
		}
		return nil, nil, errors.New("arrow stream holds no record")
	}
	rec := ir.Record()
	rec.Retain()
	return rec, ir.Schema(), nil
}

// ExportVector reads the activations or thetas of a group.
func ExportVector(api *nodenet.NetAPI, nodespace, group string, kind Kind) (Vector, error) {
	uids, err := api.GroupMembers(nodespace, group)
	if err != nil {
		return Vector{}, err
	}
	var values []float64
	switch kind {
	case KindActivation:
		values, err = api.GetActivations(nodespace, group)
	case KindTheta:
		values, err = api.GetThetas(nodespace, group)
	default:
		return Vector{}, fmt.Errorf("unknown vector kind %q", kind)
	}
	if err != nil {
		return Vector{}, err
	}
	return Vector{Nodespace: nodespace, Group: group, Kind: kind, UIDs: uids, Values: values}, nil
}

// ImportVector writes v into the group it names. The group must exist and
// hold the same members in the same order.
func ImportVector(api *nodenet.NetAPI, v Vector) error {
	uids, err := api.GroupMembers(v.Nodespace, v.Group)
	if err != nil {
		return err
	}
	if len(uids) != len(v.UIDs) {
		return fmt.Errorf("group %s has %d members, vector has %d", v.Group, len(uids), len(v.UIDs))
	}
	for i := range uids {
		if uids[i] != v.UIDs[i] {
			return fmt.Errorf("group %s member %d is %s, vector has %s", v.Group, i, uids[i], v.UIDs[i])
		}
	}
	switch v.Kind {
	case KindActivation:
		return api.SetActivations(v.Nodespace, v.Group, v.Values)
	case KindTheta:
		return api.SetThetas(v.Nodespace, v.Group, v.Values)
	default:
		return fmt.Errorf("unknown vector kind %q", v.Kind)
	}
}

// ExportMatrix reads the link weights between two groups.
func ExportMatrix(api *nodenet.NetAPI, fromNodespace, from, toNodespace, to string) (Matrix, error) {
	fromUIDs, err := api.GroupMembers(fromNodespace, from)
	if err != nil {
		return Matrix{}, err
	}
	toUIDs, err := api.GroupMembers(toNodespace, to)
	if err != nil {
		return Matrix{}, err
	}
	weights, err := api.GetLinkWeights(fromNodespace, from, toNodespace, to)
	if err != nil {
		return Matrix{}, err
	}
	return Matrix{From: from, To: to, FromUIDs: fromUIDs, ToUIDs: toUIDs, Weights: weights}, nil
}

// ImportMatrix sets the link weights between two groups from m.
func ImportMatrix(api *nodenet.NetAPI, fromNodespace, toNodespace string, m Matrix) error {
	return api.SetLinkWeights(fromNodespace, m.From, toNodespace, m.To, m.Weights)
}
