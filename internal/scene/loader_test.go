package scene

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kinereplay/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pendulumXML = `<?xml version="1.0"?>
<scene x_min="-5" x_max="5" y_min="-4" y_max="4">
  <block id="1" name="cart" width="2" height="1" color="blue" filled="true"/>
  <ball id="2" name="bob" radius="0.25" xy_parent_id="1" theta_parent_id="1" y="-2" color="#ff8000"/>
  <polygon name="fin" xy_parent_id="2" show_cs="yes">
    <node x="0" y="0"/>
    <node x="0.5" y="0"/>
    <node x="0" y="0.5"/>
  </polygon>
  <connector type="spring" color="0.5,0.5,0.5" line_width="2">
    <attach id="0" x="-4" y="0"/>
    <attach id="1" x="-1" y="0"/>
  </connector>
  <ground type="hash" x1="-5" y1="-0.5" x2="5" y2="-0.5"/>
  <input_format>
    <map column="1" type="time"/>
    <map column="2" type="body" id="1" field="x"/>
    <map column="3" type="body" id="1" field="theta"/>
  </input_format>
</scene>`

func load(t *testing.T, doc string) (*Scene, error) {
	t.Helper()
	return NewLoader().Load(strings.NewReader(doc))
}

func TestLoadScene(t *testing.T) {
	s, err := load(t, pendulumXML)
	require.NoError(t, err)

	assert.Equal(t, models.Viewport{XMin: -5, XMax: 5, YMin: -4, YMax: 4}, s.Viewport())
	require.Equal(t, 3, s.Len())

	cart := s.Body(0)
	assert.Equal(t, models.BodyBlock, cart.Kind)
	assert.Equal(t, 2.0, cart.Width)
	assert.True(t, cart.Style.Filled)
	assert.Equal(t, models.Color{B: 1}, cart.Style.Color)

	bob := s.Body(1)
	assert.Equal(t, 0, bob.XYParent)
	assert.Equal(t, 0, bob.ThetaParent)
	assert.Equal(t, -2.0, bob.Pose.Y)
	assert.InDelta(t, 128.0/255, bob.Style.Color.G, 1e-12)

	fin := s.Body(2)
	assert.Equal(t, 3, fin.ID, "auto id follows the largest declared id")
	assert.Len(t, fin.Nodes, 3)
	assert.True(t, fin.Style.ShowCS)
	assert.Equal(t, models.NoParent, fin.ThetaParent)

	require.Len(t, s.Connectors(), 1)
	conn := s.Connectors()[0]
	assert.Equal(t, models.ConnectorSpring, conn.Kind)
	assert.Equal(t, models.NoParent, conn.Ends[0].Body)
	assert.Equal(t, 0, conn.Ends[1].Body)
	assert.Equal(t, 2.0, conn.Style.LineWidth)

	require.Len(t, s.Grounds(), 1)
	assert.Equal(t, models.GroundHash, s.Grounds()[0].Kind)

	require.Len(t, s.InputMap(), 3)
	assert.True(t, s.InputMap()[0].IsTime())
	assert.Equal(t, models.FieldTheta, s.InputMap()[2].Field)
}

func TestLoadSceneDefaults(t *testing.T) {
	s, err := load(t, `<scene><ball radius="1"/></scene>`)
	require.NoError(t, err)

	assert.Equal(t, models.DefaultViewport(), s.Viewport())
	assert.Equal(t, 1, s.Body(0).ID)
	assert.Equal(t, 1.0, s.Body(0).Style.LineWidth)
	assert.Equal(t, 1.0, s.TimeStep())
	assert.Empty(t, s.InputMap())
}

func TestLoadSceneErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing radius", `<scene><ball id="1"/></scene>`, "radius"},
		{"mistyped radius", `<scene><ball id="1" radius="big"/></scene>`, "not a valid number"},
		{"zero id", `<scene><ball id="0" radius="1"/></scene>`, "reserved"},
		{"duplicate id", `<scene><ball id="4" radius="1"/><ball id="4" radius="1"/></scene>`, "duplicate"},
		{"forward reference", `<scene><ball id="1" radius="1" xy_parent_id="2"/><ball id="2" radius="1"/></scene>`, "not declared before"},
		{"one polygon node", `<scene><polygon><node x="0" y="0"/></polygon></scene>`, "at least 2 nodes"},
		{"bad bool", `<scene><ball radius="1" filled="maybe"/></scene>`, "boolean"},
		{"bad color", `<scene><ball radius="1" color="mauve"/></scene>`, "color"},
		{"bad enum", `<scene><ground type="wall" x1="0" y1="0" x2="1" y2="0"/></scene>`, "not one of"},
		{"one attach", `<scene><connector><attach x="0" y="0"/></connector></scene>`, "two <attach>"},
		{"unknown attach body", `<scene><connector><attach id="9"/><attach/></connector></scene>`, "not declared"},
		{"unknown element", `<scene><spring/></scene>`, "unknown element"},
		{"two time columns", `<scene><input_format><map column="1" type="time"/><map column="2" type="time"/></input_format></scene>`, "more than one time"},
		{"map without field", `<scene><ball radius="1"/><input_format><map column="1" type="body" id="1"/></input_format></scene>`, "field"},
		{"zero column", `<scene><input_format><map column="0" type="time"/></input_format></scene>`, "1-based"},
		{"empty viewport", `<scene x_min="1" x_max="1"/>`, "viewport"},
		{"malformed", `<scene><ball`, "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.doc)
			require.Error(t, err)
			var cfgErr *models.ConfigParseError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigParseError, got %T: %v", err, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSceneCycles(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		relation string
		chain    []int
	}{
		{"self reference", `<scene><ball id="1" radius="1" xy_parent_id="1"/></scene>`, "xy_parent", []int{1, 1}},
		{"two bodies", `<scene>
  <ball id="1" radius="1" xy_parent_id="2"/>
  <ball id="2" radius="1" xy_parent_id="1"/>
</scene>`, "xy_parent", []int{1, 2, 1}},
		{"three bodies through theta", `<scene>
  <ball id="1" radius="1" theta_parent_id="3"/>
  <ball id="2" radius="1" theta_parent_id="1"/>
  <ball id="3" radius="1" theta_parent_id="2"/>
</scene>`, "theta_parent", []int{1, 3, 2, 1}},
		{"auto ids", `<scene>
  <ball radius="1" xy_parent_id="2"/>
  <ball radius="1" xy_parent_id="1"/>
</scene>`, "xy_parent", []int{1, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.doc)
			var cycleErr *models.CycleError
			require.True(t, errors.As(err, &cycleErr), "expected CycleError, got %T: %v", err, err)
			assert.Equal(t, tt.relation, cycleErr.Relation)
			assert.Equal(t, tt.chain, cycleErr.Chain)
		})
	}

	t.Run("chain into a later body without a loop", func(t *testing.T) {
		_, err := load(t, `<scene>
  <ball id="1" radius="1" xy_parent_id="2"/>
  <ball id="2" radius="1" xy_parent_id="3"/>
  <ball id="3" radius="1"/>
</scene>`)
		var cfgErr *models.ConfigParseError
		assert.True(t, errors.As(err, &cfgErr), "expected ConfigParseError, got %T: %v", err, err)
	})
}

func TestLoadSceneLimits(t *testing.T) {
	l := NewLoader()
	l.Limits.MaxBodies = 1

	_, err := l.Load(strings.NewReader(`<scene><ball radius="1"/><ball radius="1"/></scene>`))
	var limitErr *models.ResourceLimitError
	require.True(t, errors.As(err, &limitErr), "expected ResourceLimitError, got %v", err)
	assert.Equal(t, "bodies", limitErr.Resource)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.xml")
	require.NoError(t, os.WriteFile(path, []byte(pendulumXML), 0644))

	s, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	_, err = NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func TestSceneResolve(t *testing.T) {
	s, err := load(t, `<scene>
  <ball id="1" radius="1" x="1"/>
  <ball id="2" radius="1" xy_parent_id="1" y="1"/>
</scene>`)
	require.NoError(t, err)
	require.NoError(t, s.Resolve())

	x, y := s.ToGround(1, 0, 0)
	assert.InDelta(t, 1.0, x, 1e-12)
	assert.InDelta(t, 1.0, y, 1e-12)

	s.SetField(0, models.FieldTheta, math.Pi/2)
	require.NoError(t, s.Resolve())
	x, y = s.ToGround(1, 0, 0)
	assert.InDelta(t, 0.0, x, 1e-12)
	assert.InDelta(t, 0.0, y, 1e-12)

	gx, gy := s.ToGround(models.NoParent, 3, 4)
	assert.Equal(t, 3.0, gx)
	assert.Equal(t, 4.0, gy)
}
