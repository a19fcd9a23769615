// Package tools provides the built-in PathTool handlers Genesis ships
// with out of the box: native binary document extraction grounded on the
// same parsing libraries the teacher repository uses, plus deterministic
// stand-ins for the media-processing tools (OCR, translation, audio
// denoising, image overlay) whose production implementations are
// external collaborators per the specification.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// PDFExtract returns a PathTool that extracts plain text from a PDF
// document, page by page, grounded on the teacher's PDFParser.
func PDFExtract() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:    "pdf_extract",
		Desc:        "Extracts plain text content from a PDF document, page by page.",
		InputType:   wftype.PDF,
		OutputType:  wftype.Text,
		Preferred:   1.0,
		HandlerFunc: extractPDF,
	}
}

func extractPDF(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
	tmp, err := writeTemp("genesis-pdf-*.pdf", input)
	if err != nil {
		return nil, fmt.Errorf("pdf_extract: %w", err)
	}
	defer os.Remove(tmp)

	f, err := os.Open(tmp)
	if err != nil {
		return nil, fmt.Errorf("pdf_extract: open temp file: %w", err)
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, int64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("pdf_extract: parse pdf: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- page %d ---\n%s", pageNum, text))
		}
	}
	return []byte(strings.Join(parts, "\n\n")), nil
}

// DocxExtract returns a PathTool that extracts plain text from a Word
// document, grounded on the teacher's OfficeParser.
func DocxExtract() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:    "docx_extract",
		Desc:        "Extracts plain text content from a .docx word-processed document.",
		InputType:   wftype.TextFile,
		OutputType:  wftype.Text,
		Preferred:   1.0,
		HandlerFunc: extractDocx,
	}
}

func extractDocx(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
	tmp, err := writeTemp("genesis-docx-*.docx", input)
	if err != nil {
		return nil, fmt.Errorf("docx_extract: %w", err)
	}
	defer os.Remove(tmp)

	doc, err := docx.ReadDocxFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("docx_extract: read docx: %w", err)
	}
	defer doc.Close()

	return []byte(doc.Editable().GetContent()), nil
}

// XLSXToText returns a PathTool that flattens a spreadsheet's cells into
// a readable text transcript, grounded on the teacher's OfficeParser
// excelize usage.
func XLSXToText() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:    "xlsx_to_text",
		Desc:        "Converts an .xlsx spreadsheet into a per-sheet, per-cell text transcript.",
		InputType:   wftype.Table,
		OutputType:  wftype.Text,
		Preferred:   1.0,
		HandlerFunc: xlsxToText,
	}
}

func xlsxToText(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("xlsx_to_text: open workbook: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("xlsx_to_text: read sheet %q: %w", sheetName, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "--- sheet: %s ---\n", sheetName)
		for rowIdx, row := range rows {
			for colIdx, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					fmt.Fprintf(&b, "%s%d: %s\n", columnLetter(colIdx), rowIdx+1, text)
				}
			}
		}
		sheets = append(sheets, b.String())
	}
	return []byte(strings.Join(sheets, "\n\n")), nil
}

// TextToXLSX returns a PathTool that writes a single-column spreadsheet
// from newline-delimited text, the inverse edge XLSXToText's sheet
// transcript enables a round trip through.
func TextToXLSX() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:    "text_to_xlsx",
		Desc:        "Writes newline-delimited text into a single-sheet, single-column spreadsheet.",
		InputType:   wftype.Text,
		OutputType:  wftype.Table,
		Preferred:   0.5,
		HandlerFunc: textToXLSX,
	}
}

func textToXLSX(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	for i, line := range strings.Split(string(input), "\n") {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("text_to_xlsx: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, line); err != nil {
			return nil, fmt.Errorf("text_to_xlsx: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("text_to_xlsx: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func columnLetter(colIdx int) string {
	name, _ := excelize.ColumnNumberToName(colIdx + 1)
	return name
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
