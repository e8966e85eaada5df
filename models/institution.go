package models

import "strings"

// Institution is a registered institution administered by one Cognito user.
type Institution struct {
	ID              string `json:"id" dynamodbav:"id"`
	InstitutionName string `json:"institutionName" dynamodbav:"institutionName"`
	LegalName       string `json:"legalName" dynamodbav:"legalName"`
	Abbreviation    string `json:"abbreviation" dynamodbav:"abbreviation"`
	AdminEmail      string `json:"adminEmail" dynamodbav:"adminEmail"`
	AdminUsername   string `json:"adminUsername" dynamodbav:"adminUsername"`
	AdminName       string `json:"adminName" dynamodbav:"adminName"`
	IsVerified      bool   `json:"isVerified" dynamodbav:"isVerified"`
	CreatedAt       string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt       string `json:"updatedAt" dynamodbav:"updatedAt"`
}

// SpreadsheetRecord is one data row keyed by column header.
type SpreadsheetRecord map[string]string

// Lookup returns the value under key, falling back to its all-caps variant.
func (r SpreadsheetRecord) Lookup(key string) string {
	if v, ok := r[key]; ok && v != "" {
		return v
	}
	return r[strings.ToUpper(key)]
}

// SniesInstitution is the destination schema of imported spreadsheet rows.
type SniesInstitution struct {
	Codigo       string `json:"codigo" dynamodbav:"codigo"`
	Nombre       string `json:"nombre" dynamodbav:"nombre"`
	Caracter     string `json:"caracter" dynamodbav:"caracter"`
	Naturaleza   string `json:"naturaleza" dynamodbav:"naturaleza"`
	Sector       string `json:"sector" dynamodbav:"sector"`
	Departamento string `json:"departamento" dynamodbav:"departamento"`
	Municipio    string `json:"municipio" dynamodbav:"municipio"`
	Direccion    string `json:"direccion" dynamodbav:"direccion"`
	Telefono     string `json:"telefono" dynamodbav:"telefono"`
	ImportedAt   string `json:"importedAt" dynamodbav:"importedAt"`
}

// Application is a prospective student's application to a program.
type Application struct {
	ID                 string `json:"id" dynamodbav:"id"`
	Nombre             string `json:"nombre" dynamodbav:"nombre"`
	Apellido           string `json:"apellido" dynamodbav:"apellido"`
	Email              string `json:"email" dynamodbav:"email"`
	Telefono           string `json:"telefono" dynamodbav:"telefono"`
	ProgramID          string `json:"programId" dynamodbav:"programId"`
	ProgramName        string `json:"programName" dynamodbav:"programName"`
	Estado             string `json:"estado" dynamodbav:"estado"`
	FechaCreacion      string `json:"fechaCreacion" dynamodbav:"fechaCreacion"`
	FechaActualizacion string `json:"fechaActualizacion" dynamodbav:"fechaActualizacion"`
}
