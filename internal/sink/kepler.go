package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// KeplerField describes one column of a kepler.gl dataset.
type KeplerField struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	AnalyzerType string  `json:"analyzerType"`
	Format       *string `json:"format,omitempty"`
	FieldIdx     *int    `json:"fieldIdx,omitempty"`
}

// KeplerInfo names a dataset.
type KeplerInfo struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

// KeplerData holds the rows of a dataset.
type KeplerData struct {
	Fields []KeplerField `json:"fields"`
	Rows   []target.Row  `json:"rows"`
}

// KeplerDataset is one entry of a kepler.gl addDataToMap payload.
type KeplerDataset struct {
	Info KeplerInfo `json:"info"`
	Data KeplerData `json:"data"`
}

// KeplerDocument is the payload published for each snapshot.
type KeplerDocument struct {
	Datasets []KeplerDataset `json:"datasets"`
}

// KeplerIDPrefix is prepended to dataset labels to form dataset ids.
const KeplerIDPrefix = "spire_"

// KeplerFields returns the field metadata for target.Columns.
func KeplerFields() []KeplerField {
	timeFormat := "YYYY-M-D:H:m:sZ"
	zero := 0
	fields := make([]KeplerField, 0, len(target.Columns))
	for _, name := range target.Columns {
		f := KeplerField{Name: name, Type: "string", AnalyzerType: "STRING"}
		switch name {
		case "timestamp":
			f.Type, f.AnalyzerType, f.Format, f.FieldIdx = "timestamp", "TIME", &timeFormat, &zero
		case "longitude", "latitude", "altitude":
			f.Type, f.AnalyzerType = "float", "FLOAT"
		}
		fields = append(fields, f)
	}
	return fields
}

// Kepler converts a snapshot into kepler.gl datasets, one per category.
func Kepler(snap table.Snapshot) KeplerDocument {
	fields := KeplerFields()
	doc := KeplerDocument{Datasets: make([]KeplerDataset, 0, len(snap.Datasets))}
	for _, d := range snap.Datasets {
		rows := d.Rows
		if rows == nil {
			rows = []target.Row{}
		}
		doc.Datasets = append(doc.Datasets, KeplerDataset{
			Info: KeplerInfo{Label: d.Label(), ID: KeplerIDPrefix + d.Label()},
			Data: KeplerData{Fields: fields, Rows: rows},
		})
	}
	return doc
}

// KeplerFile rewrites a JSON file with the kepler datasets on every publish.
// The file is replaced atomically so readers never see a partial document.
type KeplerFile struct {
	mu   sync.Mutex
	path string
}

// NewKeplerFile creates a sink writing to path.
func NewKeplerFile(path string) *KeplerFile {
	return &KeplerFile{path: path}
}

func (k *KeplerFile) Name() string { return "kepler" }

func (k *KeplerFile) Publish(_ context.Context, snap table.Snapshot) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return writeJSONFile(k.path, Kepler(snap))
}

func (k *KeplerFile) Close() error { return nil }

func writeJSONFile(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "marshal")
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic replaces path with data through a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "close temp file")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "rename to %s", path)
}
