package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opennfsc/client/internal/nfs3proto"
	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/pkg/config"
	"github.com/opennfsc/client/pkg/rpcgroup"
)

const readChunkSize = 32 * 1024

var getCmd = &cobra.Command{
	Use:   "get <export> <path>",
	Short: "Mount <export> and write the file at <path> to stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().String("server", "", "NFS server hostname or IP (required)")
	getCmd.Flags().String("transport", "tcp", "tcp or udp")
	getCmd.Flags().Uint32("uid", 0, "AUTH_UNIX uid presented on every call")
	getCmd.Flags().Uint32("gid", 0, "AUTH_UNIX gid presented on every call")

	_ = v.BindPFlag("server", getCmd.Flags().Lookup("server"))
	_ = v.BindPFlag("transport", getCmd.Flags().Lookup("transport"))
	_ = v.BindPFlag("uid", getCmd.Flags().Lookup("uid"))
	_ = v.BindPFlag("gid", getCmd.Flags().Lookup("gid"))
}

func runGet(cmd *cobra.Command, args []string) error {
	exportPath, filePath := args[0], args[1]

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if cfg.NFSVersion != 3 {
		return fmt.Errorf("nfsget: only nfs_version 3 is supported, got %d", cfg.NFSVersion)
	}

	mgr, err := rpcconn.NewManager()
	if err != nil {
		return fmt.Errorf("nfsget: start connection manager: %w", err)
	}
	defer mgr.Stop()

	ctx := context.Background()
	group := rpcgroup.Get(mgr, cfg.GroupKey())
	if err := group.EnsureConnection(ctx); err != nil {
		return fmt.Errorf("nfsget: discover services on %s: %w", cfg.Server, err)
	}

	cred := rpcgroup.AuthCredential(cfg.MachineName, cfg.UID, cfg.GID)

	mountClient := group.MountClient(cred)
	if mountClient == nil {
		return fmt.Errorf("nfsget: no MOUNT connection for %s", cfg.Server)
	}
	mountResult, err := mountClient.Mount(ctx, exportPath)
	if err != nil {
		return fmt.Errorf("nfsget: mount %s: %w", exportPath, err)
	}
	if mountResult.Status != 0 {
		return fmt.Errorf("nfsget: mount %s rejected: status=%d", exportPath, mountResult.Status)
	}
	defer func() { _ = mountClient.Unmount(ctx, exportPath) }()

	nfsClient := group.NFS3Client(cred)
	if nfsClient == nil {
		return fmt.Errorf("nfsget: no NFS connection for %s", cfg.Server)
	}

	fh := mountResult.FileHandle
	for _, name := range strings.Split(strings.Trim(filePath, "/"), "/") {
		if name == "" {
			continue
		}
		result, err := nfsClient.Lookup(ctx, fh, name)
		if err != nil {
			return fmt.Errorf("nfsget: lookup %q: %w", name, err)
		}
		fh = result.FileHandle
	}

	return streamFile(ctx, nfsClient, fh, cmd.OutOrStdout())
}

func streamFile(ctx context.Context, client *nfs3proto.Client, fh []byte, w io.Writer) error {
	var offset uint64
	for {
		result, err := client.Read(ctx, fh, offset, readChunkSize)
		if err != nil {
			return fmt.Errorf("nfsget: read at offset %d: %w", offset, err)
		}
		if len(result.Data) > 0 {
			if _, err := w.Write(result.Data); err != nil {
				return err
			}
		}
		offset += uint64(len(result.Data))
		if result.EOF || len(result.Data) == 0 {
			return nil
		}
	}
}
