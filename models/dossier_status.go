package models

import "errors"

// DossierStatus is a stage of the immigration case workflow.
type DossierStatus string

const (
	StatusRecu                 DossierStatus = "recu"
	StatusAccepte              DossierStatus = "accepte"
	StatusRefuse               DossierStatus = "refuse"
	StatusAttenteOnboarding    DossierStatus = "en_attente_onboarding"
	StatusEnCoursInstruction   DossierStatus = "en_cours_instruction"
	StatusPiecesManquantes     DossierStatus = "pieces_manquantes"
	StatusDossierComplet       DossierStatus = "dossier_complet"
	StatusDepose               DossierStatus = "depose"
	StatusReceptionConfirmee   DossierStatus = "reception_confirmee"
	StatusComplementDemande    DossierStatus = "complement_demande"
	StatusDecisionDefavorable  DossierStatus = "decision_defavorable"
	StatusCommunicationMotifs  DossierStatus = "communication_motifs"
	StatusRecoursPreparation   DossierStatus = "recours_preparation"
	StatusRefereMesuresUtiles  DossierStatus = "refere_mesures_utiles"
	StatusRefereSuspensionRep  DossierStatus = "refere_suspension_rep"
	StatusGainCause            DossierStatus = "gain_cause"
	StatusRejet                DossierStatus = "rejet"
	StatusDecisionFavorable    DossierStatus = "decision_favorable"
)

// ErrInvalidTransition is returned when a status change is not allowed by the workflow.
var ErrInvalidTransition = errors.New("invalid status transition")

var statusLabels = map[DossierStatus]string{
	StatusRecu:                "Reçu",
	StatusAccepte:             "Accepté",
	StatusRefuse:              "Refusé",
	StatusAttenteOnboarding:   "En attente d'onboarding",
	StatusEnCoursInstruction:  "En cours d'instruction",
	StatusPiecesManquantes:    "Pièces manquantes",
	StatusDossierComplet:      "Dossier complet",
	StatusDepose:              "Déposé",
	StatusReceptionConfirmee:  "Réception confirmée",
	StatusComplementDemande:   "Complément demandé",
	StatusDecisionDefavorable: "Décision défavorable",
	StatusCommunicationMotifs: "Communication des motifs",
	StatusRecoursPreparation:  "Préparation du recours",
	StatusRefereMesuresUtiles: "Référé mesures utiles",
	StatusRefereSuspensionRep: "Référé suspension",
	StatusGainCause:           "Gain de cause",
	StatusRejet:               "Rejet",
	StatusDecisionFavorable:   "Décision favorable",
}

// Statuses that can still be refused before anything was filed.
var refusableStatuses = map[DossierStatus]bool{
	StatusRecu:               true,
	StatusAccepte:            true,
	StatusAttenteOnboarding:  true,
	StatusEnCoursInstruction: true,
	StatusPiecesManquantes:   true,
}

var transitions = map[DossierStatus][]DossierStatus{
	StatusRecu:                {StatusAccepte},
	StatusAccepte:             {StatusAttenteOnboarding},
	StatusAttenteOnboarding:   {StatusEnCoursInstruction},
	StatusEnCoursInstruction:  {StatusPiecesManquantes, StatusDossierComplet},
	StatusPiecesManquantes:    {StatusDossierComplet},
	StatusDossierComplet:      {StatusPiecesManquantes, StatusDepose},
	StatusDepose:              {StatusReceptionConfirmee},
	StatusReceptionConfirmee:  {StatusComplementDemande, StatusDecisionFavorable, StatusDecisionDefavorable},
	StatusComplementDemande:   {StatusReceptionConfirmee, StatusDecisionFavorable, StatusDecisionDefavorable},
	StatusDecisionDefavorable: {StatusCommunicationMotifs, StatusRecoursPreparation},
	StatusCommunicationMotifs: {StatusRecoursPreparation},
	StatusRecoursPreparation:  {StatusRefereMesuresUtiles, StatusRefereSuspensionRep},
	StatusRefereMesuresUtiles: {StatusGainCause, StatusRejet},
	StatusRefereSuspensionRep: {StatusGainCause, StatusRejet},
}

// Statuses written by older clients, mapped onto the current workflow.
var legacyStatuses = map[string]DossierStatus{
	"en_attente":  StatusRecu,
	"en_cours":    StatusEnCoursInstruction,
	"en_revision": StatusDossierComplet,
	"termine":     StatusDecisionFavorable,
	"archive":     StatusDecisionFavorable,
	"annule":      StatusRefuse,
}

// AllDossierStatuses returns statuses in workflow order.
func AllDossierStatuses() []DossierStatus {
	return []DossierStatus{
		StatusRecu, StatusAccepte, StatusRefuse, StatusAttenteOnboarding,
		StatusEnCoursInstruction, StatusPiecesManquantes, StatusDossierComplet,
		StatusDepose, StatusReceptionConfirmee, StatusComplementDemande,
		StatusDecisionDefavorable, StatusCommunicationMotifs, StatusRecoursPreparation,
		StatusRefereMesuresUtiles, StatusRefereSuspensionRep, StatusGainCause,
		StatusRejet, StatusDecisionFavorable,
	}
}

func IsValidDossierStatus(s string) bool {
	_, ok := statusLabels[DossierStatus(s)]
	return ok
}

// NormalizeDossierStatus maps legacy values onto the current set.
func NormalizeDossierStatus(s string) (DossierStatus, bool) {
	if IsValidDossierStatus(s) {
		return DossierStatus(s), true
	}
	if mapped, ok := legacyStatuses[s]; ok {
		return mapped, true
	}
	return "", false
}

// Label returns the French display label.
func (s DossierStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsTerminal reports a status with no outgoing transition.
func (s DossierStatus) IsTerminal() bool {
	_, hasNext := transitions[s]
	return !hasNext
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to DossierStatus) bool {
	if from == to {
		return true
	}
	if to == StatusRefuse {
		return refusableStatuses[from]
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s DossierStatus) []DossierStatus {
	next := append([]DossierStatus(nil), transitions[s]...)
	if refusableStatuses[s] {
		next = append(next, StatusRefuse)
	}
	return next
}
