package remote

// Wire types for the clinic backend REST API. Field names mirror the
// backend's JSON exactly; list endpoints return server-assigned integer ids
// that the sync engine maps onto local backend ids.

// PatientRecord is a patient row as returned by GET /api/patients.
type PatientRecord struct {
	ID                    int64  `json:"id"`
	Nom                   string `json:"nom"`
	Prenom                string `json:"prenom"`
	DateNaissance         string `json:"dateNaissance"`
	Sexe                  string `json:"sexe"`
	Telephone             string `json:"telephone"`
	Adresse               string `json:"adresse"`
	Profession            string `json:"profession"`
	SituationMatrimoniale string `json:"situationMatrimoniale"`
	ContactUrgence        string `json:"contactUrgence"`
	NumeroPatient         string `json:"numeroPatient"`
	DateEnregistrement    string `json:"dateEnregistrement"`
	LastVisit             string `json:"lastVisit"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

// PatientRequest is the whitelisted field set for patient create/update.
type PatientRequest struct {
	Nom                   string `json:"nom"`
	Prenom                string `json:"prenom"`
	DateNaissance         string `json:"dateNaissance"`
	Sexe                  string `json:"sexe"`
	Telephone             string `json:"telephone"`
	Adresse               string `json:"adresse"`
	Profession            string `json:"profession"`
	SituationMatrimoniale string `json:"situationMatrimoniale"`
	ContactUrgence        string `json:"contactUrgence"`
	NumeroPatient         string `json:"numeroPatient"`
}

// ConsultationRecord is a consultation row as returned by GET /api/consultations.
type ConsultationRecord struct {
	ID                    int64  `json:"id"`
	PatientID             int64  `json:"patientId"`
	Date                  string `json:"date"`
	Motif                 string `json:"motif"`
	Symptomes             string `json:"symptomes"`
	Diagnostic            string `json:"diagnostic"`
	Traitement            string `json:"traitement"`
	Observations          string `json:"observations"`
	Duree                 int64  `json:"duree"`
	ProchainRdv           string `json:"prochainRdv"`
	Medecin               string `json:"medecin"`
	Status                string `json:"status"`
	Poids                 string `json:"poids"`
	Taille                string `json:"taille"`
	Tension               string `json:"tension"`
	Temperature           string `json:"temperature"`
	Pouls                 string `json:"pouls"`
	FrequenceRespiratoire string `json:"frequenceRespiratoire"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

// ConsultationRequest is the whitelisted field set for consultation
// create/update. PatientID is the patient's backend id, never a local id.
type ConsultationRequest struct {
	PatientID             int64  `json:"patientId,omitempty"`
	Date                  string `json:"date"`
	Motif                 string `json:"motif"`
	Symptomes             string `json:"symptomes"`
	Diagnostic            string `json:"diagnostic"`
	Traitement            string `json:"traitement"`
	Observations          string `json:"observations"`
	Duree                 int64  `json:"duree"`
	ProchainRdv           string `json:"prochainRdv"`
	Medecin               string `json:"medecin"`
	Status                string `json:"status"`
	Poids                 string `json:"poids"`
	Taille                string `json:"taille"`
	Tension               string `json:"tension"`
	Temperature           string `json:"temperature"`
	Pouls                 string `json:"pouls"`
	FrequenceRespiratoire string `json:"frequenceRespiratoire"`
}

// AntecedentRecord is a row of GET /api/patients/:id/antecedents.
type AntecedentRecord struct {
	ID          int64  `json:"id"`
	PatientID   int64  `json:"patientId"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Date        string `json:"date"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// AntecedentRequest is the whitelisted field set for antecedent creation.
type AntecedentRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// VaccinationRecord is a row of GET /api/patients/:id/vaccinations.
type VaccinationRecord struct {
	ID                 int64  `json:"id"`
	PatientID          int64  `json:"patientId"`
	Vaccin             string `json:"vaccin"`
	Lot                string `json:"lot"`
	DateAdministration string `json:"dateAdministration"`
	ProchainRappel     string `json:"prochainRappel"`
	AdministrePar      string `json:"administrePar"`
	Reactions          string `json:"reactions"`
	Status             string `json:"status"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// VaccinationRequest is the whitelisted field set for vaccination creation.
type VaccinationRequest struct {
	Vaccin             string `json:"vaccin"`
	Lot                string `json:"lot"`
	DateAdministration string `json:"dateAdministration"`
	ProchainRappel     string `json:"prochainRappel"`
	AdministrePar      string `json:"administrePar"`
	Reactions          string `json:"reactions"`
}

// NoteRecord is a row of GET /api/patients/:id/notes.
type NoteRecord struct {
	ID        int64  `json:"id"`
	PatientID int64  `json:"patientId"`
	Date      string `json:"date"`
	Auteur    string `json:"auteur"`
	Contenu   string `json:"contenu"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NoteRequest is the whitelisted field set for note creation.
type NoteRequest struct {
	Date    string `json:"date"`
	Auteur  string `json:"auteur"`
	Contenu string `json:"contenu"`
}

// UserRecord is a row of GET /api/users. The backend never returns the
// password column on this endpoint.
type UserRecord struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// LoginResponse is the body of a successful POST /api/auth/login or register.
type LoginResponse struct {
	Token string     `json:"token"`
	User  UserRecord `json:"user"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Nom      string `json:"nom"`
	Prenom   string `json:"prenom"`
	Email    string `json:"email"`
}

// createResponse is the backend's create acknowledgement: {id, message}.
type createResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}
