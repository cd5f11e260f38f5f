package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"lex_dossier_app_go/models"
)

const exportSheet = "Dossiers"

var exportHeaders = []string{
	"Numéro", "Titre", "Catégorie", "Statut", "Priorité",
	"Client", "Email", "Téléphone", "Responsable", "Échéance", "Créé le", "Motif de refus",
}

// ExportDossiersXLSX writes every dossier visible to user and matching f
// into a single-sheet workbook.
func ExportDossiersXLSX(db *gorm.DB, user *models.User, f DossierFilters) (*bytes.Buffer, error) {
	query := db.Model(&models.Dossier{})
	if !user.IsAdmin() {
		query = query.Where("assigned_to_id = ? OR created_by_id = ?", user.ID, user.ID)
	}
	var dossiers []models.Dossier
	err := applyDossierFilters(query, f).
		Preload("User").Preload("AssignedTo").
		Order("created_at DESC").
		Find(&dossiers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load dossiers for export: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()
	file.SetSheetName("Sheet1", exportSheet)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(exportSheet, cell, h)
	}
	headerStyle, _ := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	file.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle)

	for i, d := range dossiers {
		row := i + 2
		numero := ""
		if d.Numero != nil {
			numero = *d.Numero
		}
		phone := d.ContactPhone
		if d.User != nil && d.User.Phone != "" {
			phone = d.User.Phone
		}
		assignee := ""
		if d.AssignedTo != nil {
			assignee = d.AssignedTo.FullName()
		}
		due := ""
		if d.DueDate != nil {
			due = d.DueDate.Format("02/01/2006")
		}
		values := []interface{}{
			numero,
			d.Title,
			d.Category,
			d.Status.Label(),
			d.Priority,
			d.OwnerDisplayName(),
			d.OwnerEmail(),
			phone,
			assignee,
			due,
			d.CreatedAt.Format("02/01/2006 15:04"),
			d.RefusalReason,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			file.SetCellValue(exportSheet, cell, v)
		}
	}
	file.SetColWidth(exportSheet, "A", "A", 22)
	file.SetColWidth(exportSheet, "B", "B", 40)
	file.SetColWidth(exportSheet, "F", "G", 28)

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write excel buffer: %w", err)
	}
	return buf, nil
}
