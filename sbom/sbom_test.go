package sbom

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcgo-project/vcgo"
)

func testPlan() *vcgo.ActionPlan {
	zlibSpec := vcgo.PackageSpec{Name: "zlib", Triplet: "x64-linux"}
	appSpec := vcgo.PackageSpec{Name: "app", Triplet: "x64-linux"}

	zlib := &vcgo.InstallPlanAction{
		Spec:    zlibSpec,
		Version: vcgo.Version{Text: "1.2.11", Scheme: vcgo.SchemeRelaxed},
		Abi:     &vcgo.AbiInfo{PackageAbi: "aaaa"},
	}
	app := &vcgo.InstallPlanAction{
		Spec:    appSpec,
		Version: vcgo.Version{Text: "2.0.0", Scheme: vcgo.SchemeRelaxed},
		Abi:     &vcgo.AbiInfo{PackageAbi: "bbbb"},
		FeatureDependencies: map[string][]vcgo.FeatureSpec{
			"core": {{Spec: zlibSpec, Feature: "core"}},
		},
	}
	return &vcgo.ActionPlan{InstallActions: []*vcgo.InstallPlanAction{zlib, app}}
}

func TestBuildDocumentIncludesPackagesAndRelationships(t *testing.T) {
	doc := BuildDocument(testPlan(), "myproject", "urn:vcgo:myproject", "2026-07-31T00:00:00Z", "0.1.0")

	require.Len(t, doc.Packages, 2)
	names := []string{doc.Packages[0].Name, doc.Packages[1].Name}
	assert.Contains(t, names, "zlib")
	assert.Contains(t, names, "app")

	require.Len(t, doc.Relationships, 1)
	assert.Equal(t, "DEPENDS_ON", doc.Relationships[0].RelationshipType)
	assert.Contains(t, doc.Relationships[0].SPDXElementID, "app")
	assert.Contains(t, doc.Relationships[0].RelatedSPDXElement, "zlib")
}

func TestBuildDocumentIsDeterministic(t *testing.T) {
	d1 := BuildDocument(testPlan(), "myproject", "urn:vcgo:myproject", "2026-07-31T00:00:00Z", "0.1.0")
	d2 := BuildDocument(testPlan(), "myproject", "urn:vcgo:myproject", "2026-07-31T00:00:00Z", "0.1.0")

	var b1, b2 bytes.Buffer
	require.NoError(t, Write(&b1, d1))
	require.NoError(t, Write(&b2, d2))
	assert.Equal(t, b1.String(), b2.String())
}

func TestWriteProducesValidJSON(t *testing.T) {
	doc := BuildDocument(testPlan(), "myproject", "urn:vcgo:myproject", "2026-07-31T00:00:00Z", "0.1.0")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, SpdxVersion, out["spdxVersion"])
	assert.Equal(t, DataLicense, out["dataLicense"])
}

func TestSanitizeReplacesNonIdentifierRunes(t *testing.T) {
	assert.Equal(t, "x64-linux", sanitize("x64-linux"))
	assert.Equal(t, "a-b-c", sanitize("a b/c"))
}
