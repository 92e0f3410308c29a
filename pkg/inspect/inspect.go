// Package inspect serves read-only JSON views of a mounted filesystem over
// HTTP.
package inspect

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/weberc2/ext2fs/pkg/filesystem"
	. "github.com/weberc2/ext2fs/pkg/types"
	pz "github.com/weberc2/httpeasy"
	"golang.org/x/sys/unix"
)

type Server struct {
	FileSystem *filesystem.FileSystem
}

func (s *Server) Routes() []pz.Route {
	return []pz.Route{
		{Method: "GET", Path: "/statfs", Handler: s.Statfs},
		{Method: "GET", Path: "/groups", Handler: s.Groups},
		{Method: "GET", Path: "/inodes/{ino}", Handler: s.Inode},
		{Method: "GET", Path: "/attr/{path:.*}", Handler: s.Attr},
		{Method: "GET", Path: "/readdir/{path:.*}", Handler: s.Readdir},
	}
}

// Handler routes requests to the server, writing JSON request logs to
// `w`.
func (s *Server) Handler(w io.Writer) http.Handler {
	return pz.Register(pz.JSONLog(w), s.Routes()...)
}

func (s *Server) Statfs(r pz.Request) pz.Response {
	stats, err := s.FileSystem.Statfs()
	if err != nil {
		return handleError("getting filesystem statistics", err)
	}
	return pz.Ok(pz.JSON(&stats))
}

func (s *Server) Groups(r pz.Request) pz.Response {
	return pz.Ok(pz.JSON(s.FileSystem.Groups()))
}

func (s *Server) Inode(r pz.Request) pz.Response {
	ino, err := strconv.ParseUint(r.Vars["ino"], 10, 32)
	if err != nil {
		return pz.BadRequest(
			pz.String("malformed inode number"),
			struct {
				Message string
				Error   string
			}{
				Message: "parsing inode number",
				Error:   err.Error(),
			},
		)
	}
	inode, err := s.FileSystem.Inode(Ino(ino))
	if err != nil {
		return handleError("loading inode", err)
	}
	return pz.Ok(pz.JSON(&inode))
}

func (s *Server) Attr(r pz.Request) pz.Response {
	attr, err := s.FileSystem.Getattr("/" + r.Vars["path"])
	if err != nil {
		return handleError("getting attributes", err)
	}
	return pz.Ok(pz.JSON(&attr))
}

func (s *Server) Readdir(r pz.Request) pz.Response {
	entries, err := s.FileSystem.Readdir("/" + r.Vars["path"])
	if err != nil {
		return handleError("reading directory", err)
	}
	return pz.Ok(pz.JSON(entries))
}

func handleError(context string, err error) pz.Response {
	httpErr := httpError(err)
	return pz.Response{
		Status: httpErr.Status,
		Data:   pz.JSON(httpErr),
	}.WithLogging(struct {
		Message string
		Error   string
	}{
		Message: context,
		Error:   err.Error(),
	})
}

func httpError(err error) *pz.HTTPError {
	httpErr := &pz.HTTPError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
	}
	if errors.As(err, &httpErr) {
		return httpErr
	}

	switch errno := filesystem.Errno(err); errno {
	case unix.ENOENT:
		return &pz.HTTPError{Status: http.StatusNotFound, Message: "not found"}
	case unix.ENOTDIR, unix.EINVAL, unix.ENAMETOOLONG:
		return &pz.HTTPError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("bad request: %s", errno.Error()),
		}
	}
	return httpErr
}
