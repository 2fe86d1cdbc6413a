// Package training fits the classifiers the service serves and evaluates
// them on a held-out split.
package training

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/aigoflow/classifier-service/internal/features"
)

//go:embed iris.csv
var irisCSV []byte

// Sample is one CSV row. Species is either a class name or an integer label.
type Sample struct {
	SepalLength float64 `csv:"sepal_length"`
	SepalWidth  float64 `csv:"sepal_width"`
	PetalLength float64 `csv:"petal_length"`
	PetalWidth  float64 `csv:"petal_width"`
	Species     string  `csv:"species"`
}

// Dataset holds samples in model feature order. Y[i] is an index into Classes.
type Dataset struct {
	FeatureNames []string
	Classes      []int
	ClassNames   []string
	X            [][]float64
	Y            []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Y) }

// Labels returns the class label of every sample.
func (d *Dataset) Labels() []int {
	out := make([]int, len(d.Y))
	for i, y := range d.Y {
		out[i] = d.Classes[y]
	}
	return out
}

// subset returns the samples at idx, sharing rows with d.
func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		FeatureNames: d.FeatureNames,
		Classes:      d.Classes,
		ClassNames:   d.ClassNames,
		X:            make([][]float64, len(idx)),
		Y:            make([]int, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// LoadIris returns the bundled 150-sample Iris dataset.
func LoadIris() (*Dataset, error) {
	return ReadCSV(bytes.NewReader(irisCSV))
}

// LoadCSV reads a dataset from path.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses rows with the columns sepal_length, sepal_width,
// petal_length, petal_width and species. Named species are numbered in
// sorted order; integer species are used as labels directly.
func ReadCSV(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if err := checkHeader(data); err != nil {
		return nil, err
	}

	var rows []*Sample
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("dataset is empty")
	}

	names, numeric := speciesNames(rows)
	d := &Dataset{
		FeatureNames: append([]string(nil), features.CanonicalNames[:]...),
		X:            make([][]float64, len(rows)),
		Y:            make([]int, len(rows)),
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
		d.ClassNames = append(d.ClassNames, name)
		if numeric {
			label, _ := strconv.Atoi(name)
			d.Classes = append(d.Classes, label)
		} else {
			d.Classes = append(d.Classes, i)
		}
	}
	if len(d.Classes) < 2 {
		return nil, fmt.Errorf("dataset needs at least 2 classes, got %d", len(d.Classes))
	}

	for i, row := range rows {
		d.X[i] = []float64{row.SepalLength, row.SepalWidth, row.PetalLength, row.PetalWidth}
		d.Y[i] = index[row.Species]
	}
	return d, nil
}

var requiredColumns = []string{"sepal_length", "sepal_width", "petal_length", "petal_width", "species"}

// checkHeader rejects input missing a column; gocsv would zero-fill it.
func checkHeader(data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err == io.EOF {
		return errors.New("dataset is empty")
	}
	if err != nil {
		return fmt.Errorf("failed to read dataset header: %w", err)
	}
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[strings.TrimSpace(col)] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("dataset is missing columns %v", missing)
	}
	return nil
}

func speciesNames(rows []*Sample) ([]string, bool) {
	seen := map[string]bool{}
	numeric := true
	for _, row := range rows {
		if !seen[row.Species] {
			seen[row.Species] = true
			if _, err := strconv.Atoi(row.Species); err != nil {
				numeric = false
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	if numeric {
		sort.Slice(names, func(i, j int) bool {
			a, _ := strconv.Atoi(names[i])
			b, _ := strconv.Atoi(names[j])
			return a < b
		})
	} else {
		sort.Strings(names)
	}
	return names, numeric
}

// StratifiedSplit holds out testSize of every class. The same seed always
// yields the same split.
func StratifiedSplit(d *Dataset, testSize float64, seed int64) (train, test *Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}

	byClass := make([][]int, len(d.Classes))
	for i, y := range d.Y {
		byClass[y] = append(byClass[y], i)
	}

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for c, idx := range byClass {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("class %d has %d samples, need at least 2 to split", d.Classes[c], len(idx))
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := int(float64(len(idx))*testSize + 0.5)
		n = max(1, min(n, len(idx)-1))
		testIdx = append(testIdx, idx[:n]...)
		trainIdx = append(trainIdx, idx[n:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	sort.Ints(testIdx)

	return d.subset(trainIdx), d.subset(testIdx), nil
}
