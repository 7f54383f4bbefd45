package http

import (
	"net/http"

	"go.uber.org/zap"

	"finedu/content"
	"finedu/errs"
	"finedu/notify"
	"finedu/store"
)

// resourceAPI 一种资源的列表、详情与增删改处理器
type resourceAPI[T content.Resource, I any] struct {
	kind     content.Kind
	registry *store.Registry
	backend  store.Backend[T, I]
	fallback func() []T
	notify   notify.Func
	log      *zap.Logger
	views    bool
}

func registerKind[T content.Resource, I any](mux *http.ServeMux, requireAuth Middleware, a *resourceAPI[T, I]) {
	base := "/api/" + string(a.kind)
	mux.HandleFunc("GET "+base, a.handleList)
	mux.HandleFunc("GET "+base+"/{id}", a.handleGet)
	mux.Handle("POST "+base, requireAuth(http.HandlerFunc(a.handleCreate)))
	mux.Handle("PATCH "+base+"/{id}", requireAuth(http.HandlerFunc(a.handleUpdate)))
	mux.Handle("DELETE "+base+"/{id}", requireAuth(http.HandlerFunc(a.handleDelete)))
	if a.views {
		mux.HandleFunc("POST "+base+"/{id}/views", a.handleViews)
	}
}

// mount 获取（或创建）该过滤条件下的Store
func (a *resourceAPI[T, I]) mount(f content.Filter) *store.Store[T, I] {
	return store.Mount(a.registry, a.kind, f, func(f content.Filter) *store.Store[T, I] {
		return store.New[T, I](string(a.kind), a.backend,
			store.WithFallback(a.fallback()),
			store.WithFilter[T](f),
			store.WithNotify[T](a.notify),
			store.WithLogger[T](a.log),
		)
	})
}

type listResponse[T any] struct {
	Items     []T         `json:"items"`
	Loading   bool        `json:"loading"`
	Error     string      `json:"error,omitempty"`
	Degraded  bool        `json:"degraded"`
	Attempted bool        `json:"attempted"`
	State     store.State `json:"state"`
}

// handleList 读失败不返回错误码，而是返回示例数据并附带error字段
func (a *resourceAPI[T, I]) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s := a.mount(content.FilterFromValues(q))

	var snap store.Snapshot[T]
	if q.Get("refresh") == "1" || q.Get("refresh") == "true" {
		snap = s.Refetch(r.Context())
	} else {
		snap = s.Load(r.Context())
	}
	items := snap.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, listResponse[T]{
		Items:     items,
		Loading:   snap.Loading,
		Error:     snap.Error,
		Degraded:  snap.Degraded(),
		Attempted: snap.Attempted,
		State:     snap.State,
	})
}

func (a *resourceAPI[T, I]) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := a.mount(content.Filter{}).Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// 写操作统一走不带过滤条件的Store，其余视图失效后重新读取
func (a *resourceAPI[T, I]) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in I
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	item, err := a.mount(content.Filter{}).Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	a.registry.Invalidate(a.kind, content.Filter{})
	writeJSON(w, http.StatusCreated, item)
}

func (a *resourceAPI[T, I]) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch content.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	if len(patch) == 0 {
		writeError(w, errs.Errorf(errs.Validation, "update", string(a.kind), "empty patch"))
		return
	}
	item, err := a.mount(content.Filter{}).Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	a.registry.Invalidate(a.kind, content.Filter{})
	writeJSON(w, http.StatusOK, item)
}

func (a *resourceAPI[T, I]) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.mount(content.Filter{}).Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	a.registry.Invalidate(a.kind, content.Filter{})
	w.WriteHeader(http.StatusNoContent)
}

func (a *resourceAPI[T, I]) handleViews(w http.ResponseWriter, r *http.Request) {
	if err := a.mount(content.Filter{}).IncrementViews(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
