// Package sbom implements Component K: emitting a minimal SPDX-flavored
// software bill of materials for a resolved install plan. No example repo
// in the corpus emits SPDX, so this is a net-new concern per spec.md §6;
// it is built on stdlib encoding/json, justified in DESIGN.md, since
// nothing in the pack exercises a third-party SPDX/CycloneDX library for
// this shape.
package sbom

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/vcgo-project/vcgo"
)

// SpdxVersion is the SPDX spec version this emitter targets.
const SpdxVersion = "SPDX-2.2"

// DataLicense is fixed by the SPDX specification itself for the document
// as a whole.
const DataLicense = "CC0-1.0"

// Package is one SPDX package element, corresponding to one resolved
// InstallPlanAction.
type Package struct {
	SPDXID           string   `json:"SPDXID"`
	Name             string   `json:"name"`
	VersionInfo      string   `json:"versionInfo"`
	DownloadLocation string   `json:"downloadLocation"`
	FilesAnalyzed    bool     `json:"filesAnalyzed"`
	Checksums        []Checksum `json:"checksums,omitempty"`
	LicenseConcluded string   `json:"licenseConcluded"`
	CopyrightText    string   `json:"copyrightText"`
}

// Checksum is one algorithm/value pair attached to a Package.
type Checksum struct {
	Algorithm     string `json:"algorithm"`
	ChecksumValue string `json:"checksumValue"`
}

// Relationship records one edge between two SPDXIDs.
type Relationship struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
	RelationshipType   string `json:"relationshipType"`
}

// Document is the full emitted SBOM.
type Document struct {
	SPDXVersion       string         `json:"spdxVersion"`
	DataLicense       string         `json:"dataLicense"`
	SPDXID            string         `json:"SPDXID"`
	Name              string         `json:"name"`
	DocumentNamespace string         `json:"documentNamespace"`
	CreationInfo      CreationInfo   `json:"creationInfo"`
	Packages          []Package      `json:"packages"`
	Relationships     []Relationship `json:"relationships"`
}

// CreationInfo names the tool that produced the document and when.
type CreationInfo struct {
	Created  string   `json:"created"` // RFC3339, supplied by the caller (package never calls time.Now itself)
	Creators []string `json:"creators"`
}

// BuildDocument assembles a Document from a resolved plan. documentName
// and namespace identify the overall build (typically the root manifest's
// name and a content-derived URN); createdRFC3339 is supplied by the
// caller so this package stays free of wall-clock reads.
func BuildDocument(plan *vcgo.ActionPlan, documentName, namespace, createdRFC3339, toolVersion string) *Document {
	doc := &Document{
		SPDXVersion:       SpdxVersion,
		DataLicense:       DataLicense,
		SPDXID:            "SPDXRef-DOCUMENT",
		Name:              documentName,
		DocumentNamespace: namespace,
		CreationInfo: CreationInfo{
			Created:  createdRFC3339,
			Creators: []string{"Tool: vcgo-" + toolVersion},
		},
	}

	for _, action := range plan.InstallActions {
		id := spdxID(action.Spec)
		pkg := Package{
			SPDXID:           id,
			Name:             action.Spec.Name,
			VersionInfo:      action.Version.String(),
			DownloadLocation: "NOASSERTION",
			FilesAnalyzed:    false,
			LicenseConcluded: "NOASSERTION",
			CopyrightText:    "NOASSERTION",
		}
		if action.Abi != nil {
			pkg.Checksums = append(pkg.Checksums, Checksum{Algorithm: "SHA256", ChecksumValue: action.Abi.PackageAbi})
		}
		doc.Packages = append(doc.Packages, pkg)

		var depNames []string
		seen := make(map[string]bool)
		for _, edges := range action.FeatureDependencies {
			for _, e := range edges {
				depID := spdxID(e.Spec)
				if !seen[depID] {
					seen[depID] = true
					depNames = append(depNames, depID)
				}
			}
		}
		sort.Strings(depNames)
		for _, depID := range depNames {
			doc.Relationships = append(doc.Relationships, Relationship{
				SPDXElementID:      id,
				RelatedSPDXElement: depID,
				RelationshipType:   "DEPENDS_ON",
			})
		}
	}

	sort.Slice(doc.Packages, func(i, j int) bool { return doc.Packages[i].SPDXID < doc.Packages[j].SPDXID })
	sort.Slice(doc.Relationships, func(i, j int) bool {
		if doc.Relationships[i].SPDXElementID != doc.Relationships[j].SPDXElementID {
			return doc.Relationships[i].SPDXElementID < doc.Relationships[j].SPDXElementID
		}
		return doc.Relationships[i].RelatedSPDXElement < doc.Relationships[j].RelatedSPDXElement
	})

	return doc
}

func spdxID(spec vcgo.PackageSpec) string {
	return "SPDXRef-" + sanitize(spec.Name) + "-" + sanitize(string(spec.Triplet))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

// Write marshals doc as indented JSON to w.
func Write(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
