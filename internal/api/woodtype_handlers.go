package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/woodtypes/internal/blocksource"
	"github.com/annel0/woodtypes/internal/eventbus"
	"github.com/annel0/woodtypes/internal/woodtype"
)

// maxIngestBatch ограничивает размер одного запроса на загрузку блоков
const maxIngestBatch = 10000

// parseTypes разбирает список ролей вида "planks,log"
func parseTypes(raw string) []woodtype.ComponentType {
	var out []woodtype.ComponentType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, woodtype.ComponentType(part))
		}
	}
	return out
}

// handleList возвращает снимки всех типов дерева в порядке создания.
// ?has=planks,log оставляет только типы со всеми перечисленными ролями.
func (rs *RestServer) handleList(c *gin.Context) {
	required := parseTypes(c.Query("has"))

	snaps := make([]woodtype.Snapshot, 0, rs.registry.Len())
	for _, wt := range rs.registry.All() {
		if !wt.HasComponents(required...) {
			continue
		}
		snaps = append(snaps, wt.Snapshot())
	}
	respond(c, http.StatusOK, "", snaps)
}

// lookup ищет тип дерева по параметрам маршрута, отвечая 404 при отсутствии
func (rs *RestServer) lookup(c *gin.Context) (*woodtype.WoodType, bool) {
	id := woodtype.NewIdentifier(c.Param("namespace"), c.Param("path"))
	wt, found := rs.registry.Lookup(id)
	if !found {
		fail(c, http.StatusNotFound, "Тип дерева "+id.String()+" не найден")
		return nil, false
	}
	return wt, true
}

func (rs *RestServer) handleGet(c *gin.Context) {
	wt, found := rs.lookup(c)
	if !found {
		return
	}
	respond(c, http.StatusOK, "", wt.Snapshot())
}

// handleComponent возвращает компонент роли; ?fallback=planks подставляет
// запасную роль. 409 означает, что нужных ролей у типа пока нет.
func (rs *RestServer) handleComponent(c *gin.Context) {
	wt, found := rs.lookup(c)
	if !found {
		return
	}

	t := woodtype.ComponentType(c.Param("type"))
	fallback := woodtype.ComponentType(c.Query("fallback"))
	if fallback == "" {
		fallback = t
	}

	comp, err := wt.ComponentOrFallback(t, fallback)
	if errors.Is(err, woodtype.ErrMissingComponent) {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	respond(c, http.StatusOK, "", woodtype.SnapshotOf(comp))
}

// SubscriptionInfo описывает зарегистрированную подписку
type SubscriptionInfo struct {
	Name     string                  `json:"name"`
	Required []woodtype.ComponentType `json:"required"`
}

func (rs *RestServer) handleSubscriptions(c *gin.Context) {
	subs := rs.registry.Subscriptions()
	out := make([]SubscriptionInfo, len(subs))
	for i, s := range subs {
		out[i] = SubscriptionInfo{Name: s.String(), Required: s.Required()}
	}
	respond(c, http.StatusOK, "", out)
}

// ClassifyRequest: пробная классификация блока без записи в реестр
type ClassifyRequest struct {
	ID         string                 `json:"id" binding:"required"`
	Material   string                 `json:"material"`
	Properties map[string]interface{} `json:"properties"`
}

// ClassifyResponse: результат пробной классификации
type ClassifyResponse struct {
	BlockID       string `json:"block_id"`
	Classified    bool   `json:"classified"`
	ComponentType string `json:"component_type,omitempty"`
	WoodType      string `json:"wood_type,omitempty"`
	Known         bool   `json:"known"` // тип дерева уже есть в реестре
}

func (rs *RestServer) handleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	id, err := woodtype.ParseIdentifierIn(rs.namespace, req.ID)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	block := woodtype.Block{Material: woodtype.Material(req.Material), Properties: req.Properties}
	resp := ClassifyResponse{BlockID: id.String()}
	if t, name, matched := rs.registry.Classifier().Classify(id, block); matched {
		woodID := woodtype.NewIdentifier(id.Namespace, name)
		_, known := rs.registry.Lookup(woodID)
		resp.Classified = true
		resp.ComponentType = string(t)
		resp.WoodType = woodID.String()
		resp.Known = known
	}
	respond(c, http.StatusOK, "", resp)
}

// IngestRequest: пакет описаний блоков для загрузки в реестр
type IngestRequest struct {
	Namespace string                   `json:"namespace"`
	Blocks    []blocksource.Definition `json:"blocks" binding:"required"`
}

func (rs *RestServer) handleIngestBlocks(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if len(req.Blocks) > maxIngestBatch {
		fail(c, http.StatusRequestEntityTooLarge, "Слишком много блоков в одном запросе")
		return
	}

	ns := req.Namespace
	if ns == "" {
		ns = rs.namespace
	}

	res, err := blocksource.Scan(c.Request.Context(), rs.registry, req.Blocks, ns)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	rs.logger.Info("📥 %s загрузил %d блоков: %d классифицировано, %d отклонено",
		c.GetString("subject"), res.Total, res.Classified, res.Rejected)
	rs.publishIngest(c.Request.Context(), c.GetString("subject"), res)

	respond(c, http.StatusOK, "Блоки загружены", res)
}

// publishIngest сообщает в шину о загрузке блоков через админский API
func (rs *RestServer) publishIngest(ctx context.Context, subject string, res blocksource.ScanResult) {
	env, err := eventbus.NewEnvelope(rs.source, eventbus.TypeBlocksIngested, eventbus.DefaultPriority, res)
	if err != nil {
		rs.logger.Warn("⚠️ Событие загрузки не сериализовано: %v", err)
		return
	}
	env.Metadata = map[string]string{"subject": subject}
	if err := eventbus.Publish(ctx, env); err != nil {
		rs.logger.Warn("⚠️ Событие загрузки не опубликовано: %v", err)
	}
}
