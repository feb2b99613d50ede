package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"inventory-service/internal/ledger"
	"inventory-service/internal/models"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// ImportRowError represents an error for a specific row
type ImportRowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Success      bool             `json:"success"`
	TotalRows    int              `json:"totalRows"`
	SuccessCount int              `json:"successCount"`
	FailedCount  int              `json:"failedCount"`
	SkippedCount int              `json:"skippedCount"`
	Errors       []ImportRowError `json:"errors,omitempty"`
	CreatedIDs   []string         `json:"createdIds,omitempty"`
}

type ImportHandler struct {
	ledger *ledger.Service
}

func NewImportHandler(ledgerService *ledger.Service) *ImportHandler {
	return &ImportHandler{ledger: ledgerService}
}

// ItemImportTemplate returns the template for inventory items
func ItemImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "items",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "storeId", Description: "Store (location) UUID", Required: true, Type: "string", Example: "7f1c9a1e-0000-0000-0000-000000000001"},
			{Name: "productId", Description: "Product UUID from the catalog", Required: true, Type: "string", Example: "7f1c9a1e-0000-0000-0000-000000000002"},
			{Name: "name", Description: "Item name", Required: true, Type: "string", Example: "Tomato Sauce"},
			{Name: "sku", Description: "Stock keeping unit", Required: true, Type: "string", Example: "SAUCE-TOM-01"},
			{Name: "unit", Description: "Unit of measure", Required: false, Type: "string", Example: "kg"},
			{Name: "initialStock", Description: "Opening stock quantity", Required: false, Type: "number", Example: "50"},
			{Name: "minThreshold", Description: "Low stock threshold", Required: false, Type: "number", Example: "10"},
			{Name: "maxThreshold", Description: "Overstock threshold (0 disables)", Required: false, Type: "number", Example: "200"},
			{Name: "unitCost", Description: "Cost per unit", Required: false, Type: "number", Example: "2.35"},
			{Name: "lotTracked", Description: "Track lots for FIFO and expiry (true/false)", Required: false, Type: "boolean", Example: "true"},
		},
		SampleData: []map[string]string{
			{
				"storeId":      "7f1c9a1e-0000-0000-0000-000000000001",
				"productId":    "7f1c9a1e-0000-0000-0000-000000000002",
				"name":         "Tomato Sauce",
				"sku":          "SAUCE-TOM-01",
				"unit":         "kg",
				"initialStock": "50",
				"minThreshold": "10",
				"maxThreshold": "200",
				"unitCost":     "2.35",
				"lotTracked":   "true",
			},
			{
				"storeId":      "7f1c9a1e-0000-0000-0000-000000000001",
				"productId":    "7f1c9a1e-0000-0000-0000-000000000003",
				"name":         "Mozzarella",
				"sku":          "CHEESE-MOZ-01",
				"unit":         "kg",
				"initialStock": "20",
				"minThreshold": "5",
				"maxThreshold": "0",
				"unitCost":     "6.80",
				"lotTracked":   "true",
			},
		},
	}
}

// GetItemImportTemplate returns the item import template
// GET /api/v1/items/import/template
func (h *ImportHandler) GetItemImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	template := ItemImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template, "items")
	case "xlsx":
		h.generateXLSXTemplate(c, template, "Items")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "template": template})
	}
}

func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template ImportTemplate, entity string) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", entity))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)

	for _, sample := range template.SampleData {
		row := make([]string, len(template.Columns))
		for i, col := range template.Columns {
			row[i] = sample[col.Name]
		}
		writer.Write(row)
	}
}

func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template ImportTemplate, sheetName string) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)
	}

	for rowIdx, sample := range template.SampleData {
		for colIdx, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, sample[col.Name])
		}
	}

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.xlsx", strings.ToLower(sheetName)))

	f.Write(c.Writer)
}

// ImportItems imports inventory items from CSV or Excel file
// POST /api/v1/items/import
func (h *ImportHandler) ImportItems(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID := actorFrom(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "FILE_REQUIRED", Message: "Please upload a CSV or Excel file"},
		})
		return
	}
	defer file.Close()

	skipDuplicates := c.DefaultPostForm("skipDuplicates", "false") == "true"
	validateOnly := c.DefaultPostForm("validateOnly", "false") == "true"

	rows, parseErr := h.parseFile(file, header.Filename)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "PARSE_ERROR", Message: parseErr.Error()},
		})
		return
	}

	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "EMPTY_FILE", Message: "The file contains no data rows"},
		})
		return
	}

	result := h.processItemRows(c, tenantID.(string), userID, rows, skipDuplicates, validateOnly)
	c.JSON(http.StatusOK, result)
}

func (h *ImportHandler) parseFile(file io.Reader, filename string) ([]map[string]string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return h.parseCSV(file)
	} else if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return h.parseXLSX(file)
	}
	return nil, fmt.Errorf("only CSV and XLSX files are supported")
}

func (h *ImportHandler) parseCSV(file io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(file)

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}

	var rows []map[string]string
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1)
		rows = append(rows, row)
		lineNum++
	}

	return rows, nil
}

func (h *ImportHandler) parseXLSX(file io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	sheetName := sheets[0]
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}

	var rows []map[string]string
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2)
		rows = append(rows, row)
	}

	return rows, nil
}

type parsedItemRow struct {
	rowNum       int
	request      models.CreateItemRequest
	initialStock int
}

func (h *ImportHandler) processItemRows(c *gin.Context, tenantID, userID string, rows []map[string]string, skipDuplicates, validateOnly bool) *ImportResult {
	result := &ImportResult{
		TotalRows:  len(rows),
		Errors:     make([]ImportRowError, 0),
		CreatedIDs: make([]string, 0),
	}

	template := ItemImportTemplate()
	requiredCols := make(map[string]bool)
	for _, col := range template.Columns {
		if col.Required {
			requiredCols[strings.ToLower(col.Name)] = true
		}
	}

	parsed := make([]parsedItemRow, 0, len(rows))

	for _, row := range rows {
		rowNum, _ := strconv.Atoi(row["_row"])
		errsBefore := len(result.Errors)

		for colName := range requiredCols {
			if row[colName] == "" {
				result.Errors = append(result.Errors, ImportRowError{
					Row:     rowNum,
					Column:  colName,
					Code:    "REQUIRED_FIELD",
					Message: fmt.Sprintf("Required field '%s' is empty", colName),
				})
			}
		}

		storeID, err := uuid.Parse(row["storeid"])
		if err != nil && row["storeid"] != "" {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "storeId", Code: "INVALID_UUID", Message: "storeId is not a valid UUID",
			})
		}
		productID, err := uuid.Parse(row["productid"])
		if err != nil && row["productid"] != "" {
			result.Errors = append(result.Errors, ImportRowError{
				Row: rowNum, Column: "productId", Code: "INVALID_UUID", Message: "productId is not a valid UUID",
			})
		}

		if len(result.Errors) > errsBefore {
			continue
		}

		req := models.CreateItemRequest{
			StoreID:   storeID,
			ProductID: productID,
			Name:      row["name"],
			SKU:       row["sku"],
		}
		if row["unit"] != "" {
			unit := row["unit"]
			req.Unit = &unit
		}
		if row["minthreshold"] != "" {
			if min, err := strconv.Atoi(row["minthreshold"]); err == nil {
				req.MinThreshold = &min
			}
		}
		if row["maxthreshold"] != "" {
			if max, err := strconv.Atoi(row["maxthreshold"]); err == nil {
				req.MaxThreshold = &max
			}
		}
		if row["unitcost"] != "" {
			if cost, err := strconv.ParseFloat(row["unitcost"], 64); err == nil {
				req.UnitCost = &cost
			}
		}
		if row["lottracked"] != "" {
			tracked := strings.ToLower(row["lottracked"]) == "true"
			req.LotTracked = &tracked
		}

		initial := 0
		if row["initialstock"] != "" {
			if qty, err := strconv.Atoi(row["initialstock"]); err == nil {
				initial = qty
			}
		}

		parsed = append(parsed, parsedItemRow{rowNum: rowNum, request: req, initialStock: initial})
	}

	if validateOnly {
		result.Success = len(result.Errors) == 0
		result.SuccessCount = len(parsed)
		result.FailedCount = result.TotalRows - len(parsed)
		return result
	}

	ctx := c.Request.Context()
	for _, p := range parsed {
		item, err := h.ledger.CreateItem(ctx, tenantID, &p.request)
		if err != nil {
			if skipDuplicates && strings.Contains(err.Error(), "duplicate") {
				result.SkippedCount++
				continue
			}
			result.Errors = append(result.Errors, ImportRowError{
				Row:     p.rowNum,
				Code:    "CREATE_FAILED",
				Message: err.Error(),
			})
			result.FailedCount++
			continue
		}

		if p.initialStock > 0 {
			movementReq := &models.ApplyMovementRequest{
				Kind:     models.MovementAdjustment,
				Quantity: p.initialStock,
				Reason:   fmt.Sprintf("opening stock import %s", time.Now().Format("2006-01-02")),
			}
			if _, _, err := h.ledger.ApplyMovement(ctx, tenantID, item.ID, movementReq, userID); err != nil {
				result.Errors = append(result.Errors, ImportRowError{
					Row:     p.rowNum,
					Column:  "initialStock",
					Code:    "STOCK_INIT_FAILED",
					Message: err.Error(),
				})
			}
		}

		result.CreatedIDs = append(result.CreatedIDs, item.ID.String())
		result.SuccessCount++
	}

	result.FailedCount += result.TotalRows - len(parsed)
	result.Success = result.SuccessCount > 0

	return result
}
