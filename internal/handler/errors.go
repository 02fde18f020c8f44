package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/utils"
)

// failWith maps service errors onto HTTP statuses.
func failWith(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		utils.Fail(c, http.StatusBadRequest, err)
		return
	}
	var ierr *service.IntegrityError
	if errors.As(err, &ierr) {
		utils.Fail(c, http.StatusBadRequest, err)
		return
	}
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		utils.Fail(c, http.StatusNotFound, err)
		return
	}
	log.Printf("request failed: %v", err)
	utils.Fail(c, http.StatusInternalServerError, errors.New("internal error"))
}
