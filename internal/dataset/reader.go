package dataset

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Read ingests the tab-separated text format: each nonempty line is
// `LABEL<TAB>ATTR...`, a blank line ends a sequence. An attribute is either a
// bare name (value 1.0) or `NAME:VALUE` with a decimal value. Labels and
// attribute names are interned into the dataset's symbol tables; sequences
// are assigned to groups round-robin over numGroups (0 or 1 puts everything
// in group 0).
func (d *Dataset) Read(r io.Reader, numGroups int) error {
	var items []Item
	var labels []int
	group := 0
	nextGroup := func() int {
		g := group
		if numGroups > 1 {
			group = (group + 1) % numGroups
		}
		return g
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(items) > 0 {
				if err := d.Append(items, labels, 1.0, nextGroup()); err != nil {
					return err
				}
				items, labels = nil, nil
			}
			continue
		}
		label, attrs, found := strings.Cut(line, "\t")
		if !found {
			klog.Warningf("invalid line (no attributes): %q", line)
			continue
		}
		item := make(Item, 0, strings.Count(attrs, "\t")+1)
		for _, field := range strings.Split(attrs, "\t") {
			if field == "" {
				continue
			}
			item = append(item, Attribute{ID: d.Attrs.GetOrCreate(attrName(field)), Value: attrValue(field)})
		}
		items = append(items, item)
		labels = append(labels, d.Labels.GetOrCreate(label))
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read dataset")
	}
	if len(items) > 0 {
		return d.Append(items, labels, 1.0, nextGroup())
	}
	return nil
}

// attrName splits the attribute field on the last ':' that is followed by a
// parseable decimal. A field without a value keeps its full text as the name.
func attrName(field string) string {
	if idx := strings.LastIndexByte(field, ':'); idx >= 0 {
		if _, err := strconv.ParseFloat(field[idx+1:], 64); err == nil {
			return field[:idx]
		}
	}
	return field
}

// attrValue returns the decimal suffix of a `NAME:VALUE` field, or 1.0.
func attrValue(field string) float64 {
	if idx := strings.LastIndexByte(field, ':'); idx >= 0 {
		if v, err := strconv.ParseFloat(field[idx+1:], 64); err == nil {
			return v
		}
	}
	return 1.0
}
