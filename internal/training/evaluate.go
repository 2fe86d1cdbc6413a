package training

// Scores are the held-out metrics reported after training. Precision,
// recall and F1 are support-weighted averages over classes; a class with
// no predictions contributes zero precision.
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Map returns s in the form stored on the artifact.
func (s Scores) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  s.Accuracy,
		"precision": s.Precision,
		"recall":    s.Recall,
		"f1":        s.F1,
	}
}

// Evaluate compares predicted labels against true labels.
func Evaluate(truth, predicted []int) Scores {
	if len(truth) == 0 || len(truth) != len(predicted) {
		return Scores{}
	}

	type tally struct{ tp, fp, fn, support int }
	perClass := map[int]*tally{}
	get := func(c int) *tally {
		t, ok := perClass[c]
		if !ok {
			t = &tally{}
			perClass[c] = t
		}
		return t
	}

	var correct int
	for i, y := range truth {
		p := predicted[i]
		get(y).support++
		if y == p {
			correct++
			get(y).tp++
			continue
		}
		get(y).fn++
		get(p).fp++
	}

	var s Scores
	n := float64(len(truth))
	s.Accuracy = float64(correct) / n
	for _, t := range perClass {
		if t.support == 0 {
			continue
		}
		var precision, recall, f1 float64
		if t.tp+t.fp > 0 {
			precision = float64(t.tp) / float64(t.tp+t.fp)
		}
		recall = float64(t.tp) / float64(t.support)
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		w := float64(t.support) / n
		s.Precision += w * precision
		s.Recall += w * recall
		s.F1 += w * f1
	}
	return s
}
