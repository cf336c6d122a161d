package serialize

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type installState int

const (
	stateNotStarted installState = iota
	stateRunning
	stateDone
)

func (s installState) Name() string {
	switch s {
	case stateNotStarted:
		return "NOT_STARTED"
	case stateRunning:
		return "RUNNING"
	case stateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

func parseInstallState(name string) (interface{}, error) {
	switch name {
	case "NOT_STARTED":
		return stateNotStarted, nil
	case "RUNNING":
		return stateRunning, nil
	case "DONE":
		return stateDone, nil
	}
	return nil, &SchemaError{Expected: "install state name", Got: name}
}

type widget struct {
	Name     string   `json:"name"`
	Count    int      `json:"count,omitempty"`
	Tags     []string `json:"tags"`
	Parent   *widget  `json:"parent,omitempty"`
	State    installState
	Modified time.Time `json:"modified"`
}

func newCodec() *Codec {
	c := NewCodec(false, false)
	c.RegisterEnum(reflect.TypeOf(installState(0)), parseInstallState)
	return c
}

func TestSerializeRoundTrip(t *testing.T) {
	c := newCodec()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := widget{
		Name:  "root",
		Tags:  []string{"a", "b"},
		State: stateRunning,
		Parent: &widget{
			Name:  "parent",
			State: stateDone,
		},
		Modified: ts,
	}

	wire, err := c.Serialize(in)
	require.NoError(t, err)

	m, ok := wire.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "RUNNING", m["State"])
	assert.Equal(t, "root", m["name"])
	assert.NotContains(t, m, "count") // omitempty

	var out widget
	require.NoError(t, c.Deserialize(m, &out))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Tags, out.Tags)
	assert.Equal(t, in.State, out.State)
	require.NotNil(t, out.Parent)
	assert.Equal(t, stateDone, out.Parent.State)
	assert.True(t, in.Modified.Equal(out.Modified))
}

func TestDeserializeRejectsUnknownField(t *testing.T) {
	c := newCodec()
	wire := map[string]interface{}{"name": "x", "tags": []interface{}{}, "bogus": 1, "State": "RUNNING", "modified": "2026-01-02T03:04:05Z"}
	var out widget
	err := c.Deserialize(wire, &out)
	require.Error(t, err)
}

func TestDeserializeIgnoresUnknownFieldWhenConfigured(t *testing.T) {
	c := NewCodec(true, false)
	c.RegisterEnum(reflect.TypeOf(installState(0)), parseInstallState)
	wire := map[string]interface{}{"name": "x", "tags": []interface{}{}, "bogus": 1, "State": "RUNNING", "modified": "2026-01-02T03:04:05Z"}
	var out widget
	require.NoError(t, c.Deserialize(wire, &out))
	assert.Equal(t, "x", out.Name)
}

func TestSerializeNilPointerIsNull(t *testing.T) {
	c := newCodec()
	wire, err := c.Serialize(widget{Name: "x", State: stateNotStarted, Modified: time.Now()})
	require.NoError(t, err)
	m := wire.(map[string]interface{})
	assert.Nil(t, m["parent"])
}

// action is a tagged union of two variants, standing in for the shape
// spec's own "tagged union {V_i(T_i)}" rule describes -- e.g. curtin's
// own storage actions, each a distinct record sharing one wire slot.
type action interface {
	isAction()
}

type formatAction struct {
	Device     string `json:"device"`
	Filesystem string `json:"fstype"`
}

func (formatAction) isAction() {}

type mountAction struct {
	Device string `json:"device"`
	Path   string `json:"path"`
}

func (mountAction) isAction() {}

type actionHolder struct {
	Name   string `json:"name"`
	Action action `json:"action"`
}

func newUnionCodec() *Codec {
	c := newCodec()
	c.RegisterUnion(reflect.TypeOf((*action)(nil)).Elem(), map[string]reflect.Type{
		"format": reflect.TypeOf(formatAction{}),
		"mount":  reflect.TypeOf(mountAction{}),
	})
	return c
}

func TestSerializeTaggedUnionRoundTrip(t *testing.T) {
	c := newUnionCodec()
	in := actionHolder{Name: "step-1", Action: formatAction{Device: "/dev/sda1", Filesystem: "ext4"}}

	wire, err := c.Serialize(in)
	require.NoError(t, err)

	m := wire.(map[string]interface{})
	actionWire := m["action"].(map[string]interface{})
	assert.Equal(t, "format", actionWire["$type"])
	assert.Equal(t, "/dev/sda1", actionWire["device"])

	var out actionHolder
	require.NoError(t, c.Deserialize(m, &out))
	assert.Equal(t, in.Name, out.Name)
	got, ok := out.Action.(formatAction)
	require.True(t, ok)
	assert.Equal(t, "ext4", got.Filesystem)
}

func TestSerializeTaggedUnionSecondVariant(t *testing.T) {
	c := newUnionCodec()
	in := actionHolder{Name: "step-2", Action: mountAction{Device: "/dev/sda1", Path: "/mnt"}}

	wire, err := c.Serialize(in)
	require.NoError(t, err)

	var out actionHolder
	require.NoError(t, c.Deserialize(wire.(map[string]interface{}), &out))
	got, ok := out.Action.(mountAction)
	require.True(t, ok)
	assert.Equal(t, "/mnt", got.Path)
}

func TestDeserializeTaggedUnionRejectsUnknownVariant(t *testing.T) {
	c := newUnionCodec()
	wire := map[string]interface{}{
		"name":   "step-3",
		"action": map[string]interface{}{"$type": "wipe", "device": "/dev/sda1"},
	}
	var out actionHolder
	err := c.Deserialize(wire, &out)
	require.Error(t, err)
}

func TestDeserializeTaggedUnionRejectsMissingDiscriminator(t *testing.T) {
	c := newUnionCodec()
	wire := map[string]interface{}{
		"name":   "step-4",
		"action": map[string]interface{}{"device": "/dev/sda1"},
	}
	var out actionHolder
	err := c.Deserialize(wire, &out)
	require.Error(t, err)
}
