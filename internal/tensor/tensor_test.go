package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrconv/pkg/contract"
)

var sample = []float64{11, 12, 13, 22, 23, 33}

func TestElementLayout(t *testing.T) {
	want := [3][3]float64{{11, 12, 13}, {12, 22, 23}, {13, 23, 33}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			got, err := Element(sample, i, j)
			require.NoError(t, err)
			assert.Equal(t, want[i][j], got, "(%d,%d)", i, j)
		}
	}
}

// TestElementSymmetric element(i,j) == element(j,i)，对任意 6 分量。
func TestElementSymmetric(t *testing.T) {
	vals := [][]float64{sample, {1, -2, 3, -4, 5, -6}, {0, 0, 0, 0, 0, 0}}
	for _, v := range vals {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a, _ := Element(v, i, j)
				b, _ := Element(v, j, i)
				assert.Equal(t, a, b)
			}
		}
	}
}

func TestElementErrors(t *testing.T) {
	_, err := Element(sample, 3, 0)
	assert.ErrorIs(t, err, contract.ErrSchemaMismatch)
	var ie *contract.IndexError
	assert.ErrorAs(t, err, &ie)

	_, err = Element(sample, 0, -1)
	assert.ErrorAs(t, err, &ie)

	_, err = Element([]float64{1, 2, 3}, 0, 0)
	var se *contract.SchemaMismatchError
	assert.ErrorAs(t, err, &se)
}

func TestComponentOf(t *testing.T) {
	xy, err := ParseComponent("xy")
	require.NoError(t, err)
	v, err := xy.Of(contract.VectorValue(sample))
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)

	_, err = xy.Of(contract.ScalarValue(1))
	assert.ErrorIs(t, err, contract.ErrSchemaMismatch)

	v, err = ScalarComponent.Of(contract.ScalarValue(2.5))
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	_, err = ScalarComponent.Of(contract.VectorValue(sample))
	assert.ErrorIs(t, err, contract.ErrSchemaMismatch)
}

func TestParseComponent(t *testing.T) {
	cases := map[string]Component{
		"":       ScalarComponent,
		"scalar": ScalarComponent,
		"XZ":     {I: 0, J: 2},
		"zy":     {I: 2, J: 1},
		"1,2":    {I: 1, J: 2},
		" 2, 2 ": {I: 2, J: 2},
	}
	for in, want := range cases {
		got, err := ParseComponent(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"xw", "3,0", "a,b", "xyz"} {
		_, err := ParseComponent(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "yz", Component{I: 1, J: 2}.String())
}
