package tabular

import (
	"errors"
	"testing"
)

func frameFromCSVText(t *testing.T, text string) *Frame {
	t.Helper()
	f, err := Resolve([]byte(text))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return f
}

func TestIdentifyByName(t *testing.T) {
	f := frameFromCSVText(t, "fecha,caudal_m3s\n1961-01-01,12.5\n")
	roles, err := Identify(f, "")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.DateColumn != "fecha" {
		t.Errorf("date = %q, want fecha", roles.DateColumn)
	}
	if roles.ValueColumn != "caudal_m3s" {
		t.Errorf("value = %q, want caudal_m3s", roles.ValueColumn)
	}
}

func TestIdentifyCaseInsensitive(t *testing.T) {
	f := frameFromCSVText(t, "FECHA,Caudal_M3S\n1961-01-01,12.5\n")
	roles, err := Identify(f, "")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.DateColumn != "FECHA" || roles.ValueColumn != "Caudal_M3S" {
		t.Errorf("roles = %+v, matching should ignore case", roles)
	}
}

func TestIdentifyOrderPermutation(t *testing.T) {
	// Same columns either way round; the heuristics must land on the same
	// roles regardless of column order.
	for _, text := range []string{
		"fecha,caudal\n1961-01-01,12.5\n",
		"caudal,fecha\n12.5,1961-01-01\n",
	} {
		f := frameFromCSVText(t, text)
		roles, err := Identify(f, "")
		if err != nil {
			t.Fatalf("Identify(%q): %v", text, err)
		}
		if roles.DateColumn != "fecha" || roles.ValueColumn != "caudal" {
			t.Errorf("Identify(%q) = %+v", text, roles)
		}
	}
}

func TestIdentifyValorOverCoordinates(t *testing.T) {
	f := frameFromCSVText(t, "longitud,latitud,valor\n-72.5,-39.8,104.2\n")
	roles, err := Identify(f, "")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.ValueColumn != "valor" {
		t.Errorf("value = %q, want valor", roles.ValueColumn)
	}
}

func TestIdentifyCoordinatesNeverPreferred(t *testing.T) {
	// No name matches; numeric fallback must skip lon/lat and take the
	// unnamed measurement column.
	f := frameFromCSVText(t, "lon,lat,medicion\n-72.5,-39.8,104.2\n")
	roles, err := Identify(f, "")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.ValueColumn != "medicion" {
		t.Errorf("value = %q, want medicion", roles.ValueColumn)
	}
}

func TestIdentifyCoordinateOnlyFallback(t *testing.T) {
	// Documented last resort: coordinates are all there is.
	f := frameFromCSVText(t, "lon,lat\n-72.5,-39.8\n")
	roles, err := Identify(f, "")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.ValueColumn != "lon" {
		t.Errorf("value = %q, want lon (only numeric columns)", roles.ValueColumn)
	}
}

func TestIdentifyNumericFallbackSkipsDate(t *testing.T) {
	f := frameFromCSVText(t, "dia,nivel\n1,104.2\n")
	roles, err := Identify(f, "")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.DateColumn != "dia" {
		t.Errorf("date = %q, want dia", roles.DateColumn)
	}
	if roles.ValueColumn != "nivel" {
		t.Errorf("value = %q, want nivel", roles.ValueColumn)
	}
}

func TestIdentifyNoValueColumn(t *testing.T) {
	f := frameFromCSVText(t, "estacion,comentario\nRinihue,sin datos\n")
	_, err := Identify(f, "")
	var nve *NoValueColumnError
	if !errors.As(err, &nve) {
		t.Fatalf("err = %v, want NoValueColumnError", err)
	}
	if len(nve.Columns) != 2 {
		t.Errorf("error should carry the 2 available column names, got %v", nve.Columns)
	}
}

func TestIdentifyOverride(t *testing.T) {
	f := frameFromCSVText(t, "fecha,nivel,caudal\n1961-01-01,1.2,12.5\n")
	roles, err := Identify(f, "nivel")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if roles.ValueColumn != "nivel" {
		t.Errorf("value = %q, want override nivel", roles.ValueColumn)
	}

	if _, err := Identify(f, "no_such_column"); err == nil {
		t.Error("expected error for unknown override column")
	}
}
