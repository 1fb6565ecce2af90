// Package genomics holds the gene-sequence demo endpoint logic.
//
// It is a placeholder: the mutation indicators combine substring matches
// with coin flips and carry no clinical meaning. The random source is
// injectable so results can be reproduced.
package genomics

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// MinSequenceLength is the shortest sequence analysed. Shorter input gets
// an alert instead of results.
const MinSequenceLength = 10

const flipThreshold = 0.4

var ErrEmptySequence = errors.New("dna sequence is empty")

type Treatment struct {
	Name      string `json:"name"`
	Mechanism string `json:"mechanism"`
	Reason    string `json:"reason,omitempty"`
}

type MutationIndicators struct {
	TP53Mutation   bool `json:"tp53_mutation"`
	IDHMutation    bool `json:"idh_mutation"`
	MGMTMethylated bool `json:"mgmt_methylated"`
}

type Request struct {
	TumorType   string `json:"tumor_type" form:"tumor_type"`
	DNASequence string `json:"dna_sequence" form:"dna_sequence"`
}

type Analysis struct {
	TumorType              string             `json:"tumor_type"`
	GCContent              float64            `json:"gc_content"`
	MutationIndicators     MutationIndicators `json:"mutation_indicators"`
	StandardTreatments     []Treatment        `json:"standard_treatments"`
	PersonalizedTreatments []Treatment        `json:"personalized_treatments"`
}

// Result is either an analysis or, for too short input, an alert.
type Result struct {
	*Analysis
	Alert string `json:"alert,omitempty"`
}

var standardTreatments = map[string][]Treatment{
	"glioma": {
		{Name: "Temozolomide", Mechanism: "Alkylating chemotherapy"},
	},
	"meningioma": {
		{Name: "Surgery", Mechanism: "Primary treatment"},
		{Name: "Radiation Therapy", Mechanism: "Used for residual or aggressive tumors"},
	},
	"pituitary tumor": {
		{Name: "Bromocriptine", Mechanism: "Dopamine agonist for hormone-secreting tumors"},
	},
}

var (
	tp53Motifs = []string{"GATGAT", "ATAGAT"}
	idhMotifs  = []string{"GGTCGT", "CGTAGT"}
)

// Analyzer is safe for concurrent use.
type Analyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAnalyzer seeds the coin flips. The same seed gives the same flags for
// the same sequence of calls.
func NewAnalyzer(seed int64) *Analyzer {
	return &Analyzer{rng: rand.New(rand.NewSource(seed))}
}

// GCContent is the fraction of G and C bases, ignoring case.
func GCContent(sequence string) (float64, error) {
	if len(sequence) == 0 {
		return 0, ErrEmptySequence
	}
	upper := strings.ToUpper(sequence)
	gc := strings.Count(upper, "G") + strings.Count(upper, "C")
	return float64(gc) / float64(len(upper)), nil
}

func (a *Analyzer) Analyze(req Request) (*Result, error) {
	sequence := strings.ToUpper(strings.Join(strings.Fields(req.DNASequence), ""))
	if sequence == "" {
		return nil, ErrEmptySequence
	}
	if len(sequence) < MinSequenceLength {
		return &Result{
			Alert: fmt.Sprintf("DNA sequence is too short for analysis: %d bases, need at least %d.", len(sequence), MinSequenceLength),
		}, nil
	}

	gc, err := GCContent(sequence)
	if err != nil {
		return nil, err
	}

	tumorType := strings.ToLower(strings.TrimSpace(req.TumorType))

	a.mu.Lock()
	indicators := MutationIndicators{
		TP53Mutation:   containsAny(sequence, tp53Motifs) || a.rng.Float64() < flipThreshold,
		IDHMutation:    containsAny(sequence, idhMotifs) || a.rng.Float64() < flipThreshold,
		MGMTMethylated: gc > 0.6 || strings.Contains(sequence, "CGCG"),
	}
	tp53Confirmed := indicators.TP53Mutation && a.rng.Float64() > flipThreshold
	a.mu.Unlock()

	analysis := &Analysis{
		TumorType:              tumorType,
		GCContent:              gc,
		MutationIndicators:     indicators,
		StandardTreatments:     append([]Treatment{}, standardTreatments[tumorType]...),
		PersonalizedTreatments: []Treatment{},
	}

	if indicators.IDHMutation {
		analysis.PersonalizedTreatments = append(analysis.PersonalizedTreatments,
			Treatment{Name: "Vorasidenib", Mechanism: "IDH inhibitor", Reason: "IDH mutation detected"})
	}
	if indicators.MGMTMethylated {
		analysis.PersonalizedTreatments = append(analysis.PersonalizedTreatments,
			Treatment{Name: "Temozolomide", Mechanism: "DNA alkylating agent", Reason: "MGMT methylation detected"})
	}
	if tp53Confirmed {
		analysis.PersonalizedTreatments = append(analysis.PersonalizedTreatments,
			Treatment{Name: "APR-246", Mechanism: "TP53 reactivator", Reason: "TP53 mutation detected"})
	}

	return &Result{Analysis: analysis}, nil
}

func containsAny(s string, motifs []string) bool {
	for _, m := range motifs {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
