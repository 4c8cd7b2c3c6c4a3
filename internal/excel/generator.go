package excel

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/carbon-credits/internal/model"
)

const (
	summarySheet  = "Summary"
	requestsSheet = "Requests"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders a borrow request statement as an xlsx workbook with a
// summary sheet and one row per request.
func (g *Generator) Generate(statement model.RequestStatement) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	g.writeSummary(file, statement)

	if _, err := file.NewSheet(requestsSheet); err != nil {
		return nil, err
	}
	if err := g.writeRequests(file, statement); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, statement model.RequestStatement) {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(summarySheet, cell, value)
	}

	counts := map[model.RequestStatus]int{}
	pendingAmount := decimal.Zero
	for _, req := range statement.Requests {
		counts[req.Status]++
		if req.Status == model.RequestStatusPending {
			pendingAmount = pendingAmount.Add(req.Amount)
		}
	}

	set("A1", "Address")
	set("B1", statement.Address)
	set("A2", "Generated at")
	set("B2", statement.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	set("A3", "Unit price")
	set("B3", statement.UnitPrice.String())
	set("A4", "Requests")
	set("B4", len(statement.Requests))
	set("A5", "Pending")
	set("B5", counts[model.RequestStatusPending])
	set("A6", "Approved")
	set("B6", counts[model.RequestStatusApproved])
	set("A7", "Declined")
	set("B7", counts[model.RequestStatusDeclined])
	set("A8", "Pending amount")
	set("B8", pendingAmount.String())

	_ = file.SetColWidth(summarySheet, "A", "A", 20)
	_ = file.SetColWidth(summarySheet, "B", "B", 48)
}

func (g *Generator) writeRequests(file *excelize.File, statement model.RequestStatement) error {
	headers := []string{"ID", "Role", "Buyer", "Seller", "Amount", "Price", "Status"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		_ = file.SetCellValue(requestsSheet, cell, header)
	}

	for i, req := range statement.Requests {
		row := i + 2
		values := []interface{}{
			req.ID,
			roleOf(statement.Address, req),
			req.Buyer,
			req.PotentialSeller,
			req.Amount.String(),
			req.Price.String(),
			string(req.Status),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			_ = file.SetCellValue(requestsSheet, cell, value)
		}
	}

	_ = file.SetColWidth(requestsSheet, "A", "B", 10)
	_ = file.SetColWidth(requestsSheet, "C", "D", 45)
	_ = file.SetColWidth(requestsSheet, "E", "G", 16)
	if len(statement.Requests) > 0 {
		last := fmt.Sprintf("G%d", len(statement.Requests)+1)
		if err := file.AutoFilter(requestsSheet, "A1:"+last, nil); err != nil {
			return err
		}
	}
	return nil
}

func roleOf(address string, req model.BorrowRequest) string {
	switch address {
	case req.Buyer:
		return "buyer"
	case req.PotentialSeller:
		return "seller"
	default:
		return ""
	}
}
