package parser

import (
	"testing"

	"github.com/banachtech/orex/internal/script/ast"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleAssignment(t *testing.T) {
	root, err := Parse(`NUMBER x; x = 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Equal(t, ast.KindSequence, root.Kind)
	require.Len(t, root.Children, 2)
	require.Equal(t, ast.KindAssign, root.Children[1].Kind)
}

func TestParseIfElse(t *testing.T) {
	root, err := Parse(`IF x > 1 THEN y = 1; ELSE y = 2;`)
	require.NoError(t, err)
	ifNode := root.Children[0]
	require.Equal(t, ast.KindIf, ifNode.Kind)
	require.NotNil(t, ifNode.Else)
}

func TestParseForLoop(t *testing.T) {
	root, err := Parse(`FOR i = 1 TO 10 STEP 2 DO { x = x + i; }`)
	require.NoError(t, err)
	forNode := root.Children[0]
	require.Equal(t, ast.KindFor, forNode.Kind)
	require.Equal(t, "i", forNode.Name)
}

func TestParseCallAndArraySubscript(t *testing.T) {
	root, err := Parse(`x = pay(amount, obsDate, payDate, "USD") + arr[3];`)
	require.NoError(t, err)
	assign := root.Children[0]
	require.Equal(t, ast.KindAssign, assign.Kind)
	rhs := assign.Right
	require.Equal(t, ast.KindBinaryOp, rhs.Kind)
	require.Equal(t, ast.KindCall, rhs.Left.Kind)
	require.Equal(t, "pay", rhs.Left.FuncName)
	require.Equal(t, ast.KindArrayIndex, rhs.Right.Kind)
}

func TestParseRequire(t *testing.T) {
	root, err := Parse(`REQUIRE(x > 0);`)
	require.NoError(t, err)
	require.Equal(t, ast.KindRequire, root.Children[0].Kind)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(`x = ;`)
	require.Error(t, err)
}
