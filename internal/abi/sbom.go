package abi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SBOMDependency is one edge recorded in the stub SPDX document.
type SBOMDependency struct {
	Name    string
	Version string
}

// SBOMInput is everything needed to render the minimal SPDX document a build
// action emits alongside its ABI tag file.
type SBOMInput struct {
	Port         string
	Version      string
	Triplet      string
	PackageAbi   string
	Dependencies []SBOMDependency
}

// spdxDocument is a deliberately minimal SPDX 2.2 JSON shape: enough to
// identify the package and its direct dependency edges, not a full SPDX
// relationship graph.
type spdxDocument struct {
	SPDXVersion       string            `json:"spdxVersion"`
	DataLicense       string            `json:"dataLicense"`
	SPDXID            string            `json:"SPDXID"`
	Name              string            `json:"name"`
	DocumentNamespace string            `json:"documentNamespace"`
	Packages          []spdxPackage     `json:"packages"`
	Relationships     []spdxRelationship `json:"relationships"`
}

type spdxPackage struct {
	SPDXID           string `json:"SPDXID"`
	Name             string `json:"name"`
	VersionInfo      string `json:"versionInfo"`
	DownloadLocation string `json:"downloadLocation"`
	Checksum         string `json:"checksumSHA256,omitempty"`
}

type spdxRelationship struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelationshipType   string `json:"relationshipType"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
}

func packageSPDXID(name string) string {
	return "SPDXRef-Package-" + name
}

// WriteSBOMStub renders SBOMInput to <packageDir>/share/<port>/vcpkg.spdx.json.
func WriteSBOMStub(packageDir string, in SBOMInput) error {
	rootID := packageSPDXID(in.Port)
	doc := spdxDocument{
		SPDXVersion:       "SPDX-2.2",
		DataLicense:       "CC0-1.0",
		SPDXID:            "SPDXRef-DOCUMENT",
		Name:              fmt.Sprintf("%s@%s %s", in.Port, in.Version, in.Triplet),
		DocumentNamespace: fmt.Sprintf("https://cport.invalid/spdx/%s-%s-%s", in.Port, in.Version, in.Triplet),
		Packages: []spdxPackage{{
			SPDXID:           rootID,
			Name:             in.Port,
			VersionInfo:      in.Version,
			DownloadLocation: "NOASSERTION",
			Checksum:         in.PackageAbi,
		}},
	}
	for _, dep := range in.Dependencies {
		depID := packageSPDXID(dep.Name)
		doc.Packages = append(doc.Packages, spdxPackage{
			SPDXID:           depID,
			Name:             dep.Name,
			VersionInfo:      dep.Version,
			DownloadLocation: "NOASSERTION",
		})
		doc.Relationships = append(doc.Relationships, spdxRelationship{
			SPDXElementID:      rootID,
			RelationshipType:   "DEPENDS_ON",
			RelatedSPDXElement: depID,
		})
	}

	dir := filepath.Join(packageDir, "share", in.Port)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sbom directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sbom for %s: %w", in.Port, err)
	}
	path := filepath.Join(dir, "vcpkg.spdx.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sbom %s: %w", path, err)
	}
	return nil
}
