package http

import (
	"database/sql"
	"net/http"

	"finedu/content"
	"finedu/db"
)

// DataService 以SQLite提供 /rest/{kind} 接口，供REST后端调用
type DataService struct {
	DB     *sql.DB
	APIKey string
}

func (d *DataService) Register(mux *http.ServeMux) {
	guard := APIKeyMiddleware(d.APIKey)
	registerDocuments(mux, guard, content.KindArticles, db.NewDocuments[content.Article, content.ArticleInput](d.DB, content.KindArticles))
	registerDocuments(mux, guard, content.KindNews, db.NewDocuments[content.News, content.NewsInput](d.DB, content.KindNews))
	registerDocuments(mux, guard, content.KindUsers, db.NewDocuments[content.User, content.UserInput](d.DB, content.KindUsers))
	registerDocuments(mux, guard, content.KindUpdates, db.NewDocuments[content.Update, content.UpdateInput](d.DB, content.KindUpdates))
}

func registerDocuments[T content.Resource, I any](mux *http.ServeMux, guard Middleware, kind content.Kind, docs *db.Documents[T, I]) {
	base := "/rest/" + string(kind)
	h := func(fn http.HandlerFunc) http.Handler { return guard(fn) }

	mux.Handle("GET "+base, h(func(w http.ResponseWriter, r *http.Request) {
		items, err := docs.List(r.Context(), content.FilterFromValues(r.URL.Query()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}))
	mux.Handle("GET "+base+"/{id}", h(func(w http.ResponseWriter, r *http.Request) {
		item, err := docs.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}))
	mux.Handle("POST "+base, h(func(w http.ResponseWriter, r *http.Request) {
		var in I
		if err := decodeBody(r, &in); err != nil {
			writeError(w, err)
			return
		}
		item, err := docs.Create(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}))
	mux.Handle("PATCH "+base+"/{id}", h(func(w http.ResponseWriter, r *http.Request) {
		var patch content.Patch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, err)
			return
		}
		item, err := docs.Update(r.Context(), r.PathValue("id"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}))
	mux.Handle("DELETE "+base+"/{id}", h(func(w http.ResponseWriter, r *http.Request) {
		if err := docs.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("POST "+base+"/{id}/views", h(func(w http.ResponseWriter, r *http.Request) {
		if err := docs.IncrementViews(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}
