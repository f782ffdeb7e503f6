package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
	"github.com/jaineelmodi11/KingsHacks/internal/payments"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
)

// factsFile is either a bare list of record texts or {facts: [...]}.
type factsFile struct {
	Facts []string `yaml:"facts"`
}

// purchaseFile is either one purchase mapping or {purchases: [...]}.
type purchaseFile struct {
	Purchases []risk.Purchase `yaml:"purchases"`
}

// loadFacts reads fact records from path. The name "sweden" selects the
// built-in demo seed.
func loadFacts(path string) ([]factstore.Record, error) {
	var texts []string
	if path == "sweden" {
		texts = payments.SwedenSeed()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read facts: %w", err)
		}
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("parse facts %s: %w", path, err)
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Content[0].Decode(&texts)
		} else {
			var f factsFile
			err = node.Decode(&f)
			texts = f.Facts
		}
		if err != nil {
			return nil, fmt.Errorf("decode facts %s: %w", path, err)
		}
	}

	records := make([]factstore.Record, 0, len(texts))
	for _, t := range texts {
		records = append(records, factstore.Record{Memory: t})
	}
	return records, nil
}

func loadPurchases(path string) ([]risk.Purchase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read purchase: %w", err)
	}

	var f purchaseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse purchase %s: %w", path, err)
	}
	if len(f.Purchases) == 0 {
		var p risk.Purchase
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse purchase %s: %w", path, err)
		}
		f.Purchases = []risk.Purchase{p}
	}

	out := make([]risk.Purchase, 0, len(f.Purchases))
	for i, p := range f.Purchases {
		v, err := p.Validate()
		if err != nil {
			return nil, fmt.Errorf("purchases[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
