package handlers

import (
	"math/rand"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/services"
)

// Welcome messages are product copy shown on the splash screen; one is picked
// at random per request.
var welcomeMessages = []string{
	"Hoje é um ótimo dia para criar algo incrível. Vamos começar?",
	"A criatividade começa com um bom prompt. Pronto para construir o seu?",
	"Desbloqueie o poder da IA. A sua jornada começa com um clique.",
	"Cada prompt é uma porta para um novo mundo. Qual vamos abrir hoje?",
	"Transforme ideias em realidade. Vamos fabricar o prompt perfeito!",
}

const offlineNotice = "Não foi possível ligar à base de dados. As avaliações não serão guardadas."

// MetaHandlers serves presentation metadata such as the welcome screen copy.
type MetaHandlers struct {
	catalog services.CatalogService
	pick    func(n int) int
}

// NewMetaHandlers constructs the meta handlers.
func NewMetaHandlers(catalog services.CatalogService) *MetaHandlers {
	return &MetaHandlers{
		catalog: catalog,
		pick:    rand.Intn,
	}
}

// Routes wires the meta endpoints onto the provided router.
func (h *MetaHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/welcome", h.welcome)
}

type welcomeResponse struct {
	Title         string `json:"title"`
	Message       string `json:"message"`
	Source        string `json:"source,omitempty"`
	OfflineNotice string `json:"offlineNotice,omitempty"`
}

func (h *MetaHandlers) welcome(w http.ResponseWriter, _ *http.Request) {
	response := welcomeResponse{
		Title:   "Bem-vindo à Fábrica de Prompts!",
		Message: welcomeMessages[h.pick(len(welcomeMessages))],
	}
	if h.catalog != nil {
		source := h.catalog.Source()
		response.Source = string(source)
		if source == domain.SourceFallback {
			response.OfflineNotice = offlineNotice
		}
	}
	writeJSONResponse(w, http.StatusOK, response)
}
