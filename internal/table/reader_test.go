package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	data := []byte("Ngày,Diễn giải,Ghi nợ\r\n\r\n01/02/2024,\"chuyển, khoản\",50000\n02/02/2024,\"nói \"\"xin chào\"\"\",11000\n")
	grid, err := ReadCSV(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) != 3 {
		t.Fatalf("got %d rows, want 3 (blank line dropped)", len(grid))
	}
	if grid[1][1] != "chuyển, khoản" {
		t.Errorf("quoted delimiter mangled: %q", grid[1][1])
	}
	if grid[2][1] != `nói "xin chào"` {
		t.Errorf("escaped quote mangled: %q", grid[2][1])
	}
}

func TestReadCSVEmbeddedNewline(t *testing.T) {
	grid, err := ReadCSV([]byte("a,\"line1\nline2\",c\n"))
	if err != nil {
		t.Fatal(err)
	}
	if grid[0][1] != "line1\nline2" {
		t.Errorf("embedded newline mangled: %q", grid[0][1])
	}
}

func TestReadCSVEmpty(t *testing.T) {
	for _, data := range []string{"", "\n\n", "  \n"} {
		_, err := ReadCSV([]byte(data))
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("ReadCSV(%q) err = %v, want ErrEmptyInput", data, err)
		}
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Ngày", "Diễn giải", "Ghi nợ"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"01/02/2024", "chuyển khoản", "50000"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"03/02/2024", "phí", "11000"}))
	require.NoError(t, f.MergeCell("Sheet1", "A2", "A3"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	doc, err := ReadXLSX(buf.Bytes(), "")
	require.NoError(t, err)
	require.Equal(t, "Sheet1", doc.Sheet)
	require.GreaterOrEqual(t, len(doc.Grid), 4)
	require.Equal(t, "Ngày", doc.Grid[0][0])

	require.Len(t, doc.Merges, 1)
	m := doc.Merges[0]
	require.Equal(t, 1, m.StartRow)
	require.Equal(t, 2, m.EndRow)
	require.Equal(t, 0, m.StartCol)
	require.Equal(t, "01/02/2024", m.Value)
}

func TestReadXLSXNamedSheet(t *testing.T) {
	f := excelize.NewFile()
	_, err := f.NewSheet("SaoKe")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("SaoKe", "A1", &[]any{"Date", "Amount"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	doc, err := ReadXLSX(buf.Bytes(), "SaoKe")
	require.NoError(t, err)
	require.Equal(t, "SaoKe", doc.Sheet)
	require.Equal(t, "Date", doc.Grid[0][0])

	_, err = ReadXLSX(buf.Bytes(), "NoSuchSheet")
	require.Error(t, err)
}

func TestReadXLSXEmpty(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = ReadXLSX(buf.Bytes(), "")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestReadXLSXGarbage(t *testing.T) {
	_, err := ReadXLSX([]byte("not a zip archive"), "")
	require.Error(t, err)
}
