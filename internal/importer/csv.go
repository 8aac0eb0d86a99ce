package importer

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/address-cli/internal/model"
)

// ReadCSV parses a CSV file into records. The first row is read as a header;
// if no column name is recognized the file is treated as headerless
// single-column raw input and the first row becomes a record too.
func ReadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	setters := mapHeader(header)

	var records []Record
	line := 1
	if !anyRecognized(setters) {
		// Headerless raw list: every cell in column 0 is an address.
		setters = []func(*model.Components, string){headerFields["raw"]}
		records = append(records, buildRecord(line, header[:1], setters))
	}

	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read line %d", line+1)
		}
		line++
		rec := buildRecord(line, cells, setters)
		if rec.Components == (model.Components{}) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}
