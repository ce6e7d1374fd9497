// Package export renders completed run results into shareable artifacts and
// uploads them to the blob store through a queued worker.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"

	"spatialcore/internal/core"
)

// Format identifies an artifact rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPNG  Format = "png"
)

// palette assigns stable colors to categories by sorted index.
var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
}

func categoryColor(categories []string, category string) color.RGBA {
	for i, c := range categories {
		if c == category {
			return palette[i%len(palette)]
		}
	}
	return color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
}

type runSummaryDocument struct {
	Run       core.RunRecord   `json:"run"`
	Summaries []summarySection `json:"marker_summaries,omitempty"`
}

type summarySection struct {
	Group   string              `json:"group"`
	Records []core.MarkerRecord `json:"records"`
}

// renderSummaryJSON serializes the run record and ranked marker summaries.
func renderSummaryJSON(result core.RunResult) ([]byte, error) {
	doc := runSummaryDocument{Run: result.Record}
	for _, summary := range result.Summaries {
		doc.Summaries = append(doc.Summaries, summarySection{Group: summary.Group, Records: summary.Records})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// renderUnitsCSV writes the reconciled unit table.
func renderUnitsCSV(result core.RunResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	header := []string{"barcode", "label", "cluster", "in_tissue", "array_row", "array_col", "pxl_x", "pxl_y"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, unit := range result.Units {
		inTissue := "0"
		if unit.Position.InTissue {
			inTissue = "1"
		}
		row := []string{
			string(unit.Barcode),
			unit.Label,
			unit.Cluster,
			inTissue,
			strconv.Itoa(unit.Position.Row),
			strconv.Itoa(unit.Position.Col),
			strconv.FormatFloat(unit.Position.X, 'f', -1, 64),
			strconv.FormatFloat(unit.Position.Y, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const mapCellSize = 8

// renderClusterMap draws the section grid with one cell per unit colored by
// cluster assignment.
func renderClusterMap(result core.RunResult) ([]byte, error) {
	if len(result.Units) == 0 {
		return nil, fmt.Errorf("no units to render")
	}
	minRow, minCol := result.Units[0].Position.Row, result.Units[0].Position.Col
	maxRow, maxCol := minRow, minCol
	for _, unit := range result.Units {
		if unit.Position.Row < minRow {
			minRow = unit.Position.Row
		}
		if unit.Position.Row > maxRow {
			maxRow = unit.Position.Row
		}
		if unit.Position.Col < minCol {
			minCol = unit.Position.Col
		}
		if unit.Position.Col > maxCol {
			maxCol = unit.Position.Col
		}
	}
	width := (maxCol - minCol + 1) * mapCellSize
	height := (maxRow - minRow + 1) * mapCellSize
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	categories := result.Clusters.Categories()
	for _, unit := range result.Units {
		x0 := (unit.Position.Col - minCol) * mapCellSize
		y0 := (unit.Position.Row - minRow) * mapCellSize
		cell := image.Rect(x0, y0, x0+mapCellSize-1, y0+mapCellSize-1)
		draw.Draw(img, cell, &image.Uniform{C: categoryColor(categories, unit.Cluster)}, image.Point{}, draw.Src)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	volcanoWidth  = 640
	volcanoHeight = 480
	volcanoMargin = 40
)

// renderVolcano plots every marker record as log2 fold change against
// -log10(padj). Significant records are red, ranked (top-K) records get a
// larger mark, everything else is gray.
func renderVolcano(result core.RunResult) ([]byte, error) {
	if len(result.Markers) == 0 {
		return nil, fmt.Errorf("no marker records to render")
	}
	ranked := make(map[string]struct{})
	for _, summary := range result.Summaries {
		for _, record := range summary.Records {
			ranked[summary.Group+"\x00"+record.Feature] = struct{}{}
		}
	}

	maxAbsFold, maxLogP := 1.0, 1.0
	for _, record := range result.Markers {
		if f := math.Abs(record.Log2FoldChange); f > maxAbsFold {
			maxAbsFold = f
		}
		if p := negLog10(record.AdjustedP); p > maxLogP {
			maxLogP = p
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, volcanoWidth, volcanoHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	axis := color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	// y axis at fold change zero, x axis along the bottom margin.
	drawLine(img, volcanoWidth/2, volcanoMargin, volcanoWidth/2, volcanoHeight-volcanoMargin, axis)
	drawLine(img, volcanoMargin, volcanoHeight-volcanoMargin, volcanoWidth-volcanoMargin, volcanoHeight-volcanoMargin, axis)

	gray := color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	red := color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	for _, record := range result.Markers {
		x := volcanoWidth/2 + int(record.Log2FoldChange/maxAbsFold*float64(volcanoWidth/2-volcanoMargin))
		y := volcanoHeight - volcanoMargin - int(negLog10(record.AdjustedP)/maxLogP*float64(volcanoHeight-2*volcanoMargin))
		c := gray
		if record.Significant {
			c = red
		}
		size := 1
		if _, top := ranked[record.Group+"\x00"+record.Feature]; top {
			size = 2
		}
		drawPoint(img, x, y, size, c)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func negLog10(p float64) float64 {
	if p <= 0 {
		p = 1e-300
	}
	return -math.Log10(p)
}

func drawPoint(img *image.RGBA, x, y, size int, c color.RGBA) {
	rect := image.Rect(x-size, y-size, x+size+1, y+size+1).Intersect(img.Bounds())
	draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// drawLine renders an axis-aligned line segment.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	rect := image.Rect(x0, y0, x1+1, y1+1).Intersect(img.Bounds())
	draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
}
