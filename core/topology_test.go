package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "0", want: []int{0}},
		{in: "0-3", want: []int{0, 1, 2, 3}},
		{in: "0-1,4,6-7\n", want: []int{0, 1, 4, 6, 7}},
		{in: "3-1", wantErr: true},
		{in: "a-b", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCPUList(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampNodes(t *testing.T) {
	assert.Equal(t, 1, clampNodes(-3, MaxNodes))
	assert.Equal(t, 1, clampNodes(0, MaxNodes))
	assert.Equal(t, 4, clampNodes(4, MaxNodes))
	assert.Equal(t, MaxNodes, clampNodes(1000, MaxNodes))
	assert.Equal(t, 2, clampNodes(8, 2))
}

// TestStaticTopology verifies the fixed layout
// Given: A two-node static topology with a bind hook
// When: Nodes are counted, listed and bound
// Then: In-range nodes succeed through the hook and out-of-range nodes fail
func TestStaticTopology(t *testing.T) {
	// Arrange
	hookErr := errors.New("hook")
	topo := &StaticTopology{Nodes: [][]int{{0, 1}, {2, 3}}}
	var bound []int
	topo.BindFunc = func(node int) error {
		bound = append(bound, node)
		if node == 1 {
			return hookErr
		}
		return nil
	}

	// Act and Assert
	n, err := topo.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cpus, err := topo.CPUs(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, cpus)

	assert.NoError(t, topo.Bind(0))
	assert.ErrorIs(t, topo.Bind(1), hookErr)
	assert.Error(t, topo.Bind(2))
	assert.Equal(t, []int{0, 1}, bound)

	_, err = topo.CPUs(-1)
	assert.Error(t, err)
}
