package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
)

// Document is the ready-to-render view of a generated meal plan. The renderer
// is deterministic: the same document always yields the same layout.
type Document struct {
	Title         string
	CustomerEmail string
	CalorieTarget int
	Days          []Day
	Notes         string
}

type Day struct {
	Label string
	Meals []Meal
}

type Meal struct {
	Name        string
	Description string
	Calories    int
}

// Render packages the document into PDF bytes.
func Render(doc Document) ([]byte, error) {
	if len(doc.Days) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document has no days to render")
	}

	f := gofpdf.New("P", "mm", "A4", "")
	f.SetTitle(doc.Title, false)
	f.SetAutoPageBreak(true, 18)
	f.AddPage()

	f.SetFont("Helvetica", "B", 20)
	f.CellFormat(0, 12, doc.Title, "", 1, "C", false, 0, "")
	f.SetFont("Helvetica", "", 10)
	f.CellFormat(0, 6, fmt.Sprintf("Prepared for %s", doc.CustomerEmail), "", 1, "C", false, 0, "")
	if doc.CalorieTarget > 0 {
		f.CellFormat(0, 6, fmt.Sprintf("Daily target: %d kcal", doc.CalorieTarget), "", 1, "C", false, 0, "")
	}
	f.Ln(4)

	for _, day := range doc.Days {
		f.SetFont("Helvetica", "B", 14)
		f.CellFormat(0, 9, day.Label, "B", 1, "L", false, 0, "")
		f.Ln(1)
		for _, meal := range day.Meals {
			f.SetFont("Helvetica", "B", 11)
			header := meal.Name
			if meal.Calories > 0 {
				header = fmt.Sprintf("%s (%d kcal)", meal.Name, meal.Calories)
			}
			f.CellFormat(0, 6, header, "", 1, "L", false, 0, "")
			if meal.Description != "" {
				f.SetFont("Helvetica", "", 10)
				f.MultiCell(0, 5, meal.Description, "", "L", false)
			}
			f.Ln(1)
		}
		f.Ln(3)
	}

	if doc.Notes != "" {
		f.SetFont("Helvetica", "I", 9)
		f.MultiCell(0, 5, doc.Notes, "", "L", false)
	}

	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render pdf")
	}
	return buf.Bytes(), nil
}
