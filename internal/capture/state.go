package capture

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jivesoftware/ImageCapturer/internal/common"
)

// StateVersion is the newest encoding this package reads and writes.
const StateVersion = 1

const (
	fieldVersion     protowire.Number = 1
	fieldTitle       protowire.Number = 2
	fieldScratchPath protowire.Number = 3
	fieldCorrelation protowire.Number = 4
)

//go:embed state.schema.json
var stateSchemaJSON string

var stateSchema = jsonschema.MustCompileString("state.schema.json", stateSchemaJSON)

// State is the persisted form of a Session. ScratchPath and CorrelationID
// are both set, or ScratchPath is nil and CorrelationID is NoRequest.
type State struct {
	Title         *string
	ScratchPath   *string
	CorrelationID int
}

// Pending reports whether the state carries an outstanding request.
func (st State) Pending() bool {
	return st.ScratchPath != nil
}

// normalize treats a missing or empty scratch path as no pending request.
func (st State) normalize() State {
	if st.ScratchPath == nil || *st.ScratchPath == "" {
		st.ScratchPath = nil
		st.CorrelationID = NoRequest
	}
	return st
}

func (st State) Validate() error {
	switch {
	case st.ScratchPath == nil && st.CorrelationID != NoRequest:
		return invalidState(fmt.Errorf("correlation id %d without scratch path", st.CorrelationID))
	case st.ScratchPath != nil && *st.ScratchPath == "":
		return invalidState(errors.New("empty scratch path"))
	case st.ScratchPath != nil && st.CorrelationID < 1:
		return invalidState(fmt.Errorf("scratch path with correlation id %d", st.CorrelationID))
	}
	return nil
}

func invalidState(cause error) error {
	return common.NewAppError(common.CodeInvalidState, "decode session state", errors.Join(common.ErrInvalidState, cause))
}

// MarshalBinary encodes the state as a versioned protobuf-wire parcel.
func (st State) MarshalBinary() ([]byte, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, StateVersion)
	if st.Title != nil {
		b = protowire.AppendTag(b, fieldTitle, protowire.BytesType)
		b = protowire.AppendString(b, *st.Title)
	}
	if st.ScratchPath != nil {
		b = protowire.AppendTag(b, fieldScratchPath, protowire.BytesType)
		b = protowire.AppendString(b, *st.ScratchPath)
	}
	b = protowire.AppendTag(b, fieldCorrelation, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(st.CorrelationID)))
	return b, nil
}

// UnmarshalBinary decodes a parcel. Unknown fields are skipped.
func (st *State) UnmarshalBinary(b []byte) error {
	var (
		out     = State{CorrelationID: NoRequest}
		version uint64
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return invalidState(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(b)
		case num == fieldTitle && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			out.Title = &v
		case num == fieldScratchPath && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			out.ScratchPath = &v
		case num == fieldCorrelation && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			id := protowire.DecodeZigZag(v)
			if id < math.MinInt32 || id > math.MaxInt32 {
				return invalidState(fmt.Errorf("correlation id %d out of range", id))
			}
			out.CorrelationID = int(id)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return invalidState(protowire.ParseError(n))
		}
		b = b[n:]
	}

	if err := checkVersion(version); err != nil {
		return err
	}
	out = out.normalize()
	if err := out.Validate(); err != nil {
		return err
	}
	*st = out
	return nil
}

func checkVersion(v uint64) error {
	switch {
	case v == 0:
		return invalidState(errors.New("missing version"))
	case v > StateVersion:
		return invalidState(fmt.Errorf("version %d is newer than %d", v, StateVersion))
	}
	return nil
}

type stateDoc struct {
	Version       int     `json:"version"`
	Title         *string `json:"title,omitempty"`
	ScratchPath   *string `json:"scratch_path,omitempty"`
	CorrelationID int     `json:"correlation_id"`
}

func (st State) MarshalJSON() ([]byte, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(stateDoc{
		Version:       StateVersion,
		Title:         st.Title,
		ScratchPath:   st.ScratchPath,
		CorrelationID: st.CorrelationID,
	})
}

// UnmarshalJSON validates the document against the embedded schema before decoding it.
func (st *State) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return invalidState(err)
	}
	if err := stateSchema.Validate(raw); err != nil {
		return invalidState(err)
	}

	var doc stateDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return invalidState(err)
	}
	if err := checkVersion(uint64(doc.Version)); err != nil {
		return err
	}
	out := State{Title: doc.Title, ScratchPath: doc.ScratchPath, CorrelationID: doc.CorrelationID}.normalize()
	if err := out.Validate(); err != nil {
		return err
	}
	*st = out
	return nil
}
