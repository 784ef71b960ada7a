package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHTMLTree_ScopedNamespaces(t *testing.T) {
	data := `<package xmlns="urn:outer"><metadata xmlns="urn:inner" xmlns:dc="urn:dc"><dc:title>T</dc:title></metadata><manifest></manifest></package>`

	root, err := decodeHTMLTree([]byte(data))
	require.NoError(t, err)

	pkg := root.find("", "package")
	require.NotNil(t, pkg)
	assert.Equal(t, "urn:outer", pkg.Name.Space)
	require.Len(t, pkg.Children, 2)

	metadata := pkg.Children[0]
	assert.Equal(t, "urn:inner", metadata.Name.Space)
	require.Len(t, metadata.Children, 1)
	assert.Equal(t, "urn:dc", metadata.Children[0].Name.Space)
	assert.Equal(t, "T", metadata.Children[0].Text.String())

	assert.Equal(t, "urn:outer", pkg.Children[1].Name.Space, "sibling keeps the enclosing bindings")
}
