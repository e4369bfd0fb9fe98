// Package report renders approval requests into spreadsheets for back-office review.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

const (
	requestsSheet = "Requests"
	stagesSheet   = "Stages"
	timeLayout    = "2006-01-02 15:04:05"
)

var (
	requestHeader = []interface{}{
		"Request ID", "Workflow", "Entity Type", "Entity ID", "Unit", "Requested By",
		"Requested At", "Status", "Current Stage", "Completed At",
	}
	stageHeader = []interface{}{
		"Request ID", "Stage", "Approver", "Role", "Status", "Decision", "Reviewed By", "Reviewed At", "Comments",
	}
)

// Row is one request with its stage executions
type Row struct {
	Request    *entity.ApprovalRequest
	Executions []*entity.ApprovalStageExecution
}

// ExcelExporter writes approval requests to an XLSX workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export writes a workbook with a Requests sheet and a Stages sheet to w
func (e *ExcelExporter) Export(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", requestsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(stagesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for sheet, header := range map[string][]interface{}{requestsSheet: requestHeader, stagesSheet: stageHeader} {
		if err := e.writeRow(f, sheet, 1, header); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	stageRow := 2
	for i, row := range rows {
		req := row.Request
		current := ""
		if req.CurrentStageOrder != nil {
			current = fmt.Sprint(*req.CurrentStageOrder)
		}
		err := e.writeRow(f, requestsSheet, i+2, []interface{}{
			req.ID, req.WorkflowCode, req.EntityType, req.EntityID, req.UnitID, req.RequestedBy,
			formatTime(&req.RequestedAt), string(req.Status), current, formatTime(req.CompletedAt),
		})
		if err != nil {
			return err
		}

		for _, exec := range row.Executions {
			err := e.writeRow(f, stagesSheet, stageRow, []interface{}{
				exec.RequestID, exec.StageOrder, exec.AssignedApproverID, exec.AssignedRoleID,
				string(exec.Status), string(exec.Decision), exec.ReviewedBy, formatTime(exec.ReviewedAt), exec.Comments,
			})
			if err != nil {
				return err
			}
			stageRow++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Approval export written",
		zap.Int("requests", len(rows)),
		zap.Int("stages", stageRow-2))
	return nil
}

func (e *ExcelExporter) writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
